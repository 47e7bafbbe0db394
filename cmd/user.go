package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var userPasswordFlag string

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage panel accounts",
}

// randomPassword returns 16 hex characters from a CSPRNG.
func randomPassword() (string, error) {
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Creates a panel account",
	Long: `Creates a new account for the web UI. When --password is not given a
random one is generated and printed once.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		username := strings.TrimSpace(args[0])
		if username == "" {
			fmt.Fprintln(os.Stderr, "Username cannot be empty.")
			os.Exit(1)
		}

		password := userPasswordFlag
		generated := false
		if password == "" {
			var err error
			password, err = randomPassword()
			if err != nil {
				logger.Error("User add: generating password: %v", err)
				fmt.Fprintln(os.Stderr, "Error generating a random password.")
				os.Exit(1)
			}
			generated = true
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("User add: hashing password: %v", err)
			fmt.Fprintln(os.Stderr, "Error hashing the password.")
			os.Exit(1)
		}

		user, err := database.CreateUser(username, string(hash))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				fmt.Fprintf(os.Stderr, "A user named '%s' already exists.\n", username)
			} else {
				logger.Error("User add: creating user '%s': %v", username, err)
				fmt.Fprintln(os.Stderr, "Error creating the user.")
			}
			os.Exit(1)
		}

		logger.Info("Created user '%s' (ID %d) via CLI.", user.Username, user.ID)
		if generated {
			fmt.Printf("Created user '%s' with password: %s\n", user.Username, password)
			fmt.Println("Store it now; it is not shown again.")
		} else {
			fmt.Printf("Created user '%s'.\n", user.Username)
		}
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Resets an account's password",
	Long: `Sets a new password for an existing account. When --password is not
given a random one is generated and printed once. Unlike the API this does
not require the old password, so it doubles as account recovery.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		username := strings.TrimSpace(args[0])

		user, err := database.GetUserByUsername(username)
		if err != nil {
			fmt.Fprintf(os.Stderr, "User '%s' not found.\n", username)
			os.Exit(1)
		}

		password := userPasswordFlag
		generated := false
		if password == "" {
			password, err = randomPassword()
			if err != nil {
				logger.Error("User passwd: generating password: %v", err)
				fmt.Fprintln(os.Stderr, "Error generating a random password.")
				os.Exit(1)
			}
			generated = true
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("User passwd: hashing password: %v", err)
			fmt.Fprintln(os.Stderr, "Error hashing the password.")
			os.Exit(1)
		}

		if err := database.UpdateUserPassword(user.ID, string(hash)); err != nil {
			logger.Error("User passwd: updating password for '%s': %v", username, err)
			fmt.Fprintln(os.Stderr, "Error updating the password.")
			os.Exit(1)
		}

		logger.Info("Password reset for user '%s' via CLI.", user.Username)
		if generated {
			fmt.Printf("New password for '%s': %s\n", user.Username, password)
			fmt.Println("Store it now; it is not shown again.")
		} else {
			fmt.Printf("Password updated for '%s'.\n", user.Username)
		}
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userPasswordFlag, "password", "", "Password for the account (a random one is generated when omitted)")
	userPasswdCmd.Flags().StringVar(&userPasswordFlag, "password", "", "New password for the account (a random one is generated when omitted)")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userPasswdCmd)
	rootCmd.AddCommand(userCmd)
}
