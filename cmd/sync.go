package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/models"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [subscriptionID]",
	Short: "Fetches subscriptions and imports their nodes once, then exits",
	Long: `Syncs the subscription with the given ID, or every enabled subscription
when no ID is passed. Useful from cron when the panel itself is not running.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, syncManager, _, _, err := initPanelServices()
		if err != nil {
			logger.Error("Sync command: %v", err)
			fmt.Fprintln(os.Stderr, "Error preparing the subscription fetcher.")
			os.Exit(1)
		}

		ctx := context.Background()
		var results []models.SyncResult

		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid subscription ID '%s'.\n", args[0])
				os.Exit(1)
			}
			sub, err := database.GetSubscriptionByID(id)
			if err != nil {
				logger.Error("Sync command: fetching subscription %d: %v", id, err)
				fmt.Fprintf(os.Stderr, "Subscription %d not found.\n", id)
				os.Exit(1)
			}
			results = append(results, syncManager.SyncSubscription(ctx, sub))
		} else {
			results, err = syncManager.SyncAll(ctx)
			if err != nil {
				logger.Error("Sync command: syncing all subscriptions: %v", err)
				fmt.Fprintln(os.Stderr, "Error listing subscriptions.")
				os.Exit(1)
			}
		}

		if len(results) == 0 {
			fmt.Println("No enabled subscriptions to sync.")
			return
		}

		writer := new(tabwriter.Writer)
		writer.Init(os.Stdout, 0, 8, 1, '\t', 0)
		fmt.Fprintln(writer, "ID\tSTATUS\tNODES\tDOCUMENT\tERROR")
		fmt.Fprintln(writer, "--\t------\t-----\t--------\t-----")
		failures := 0
		for _, res := range results {
			docStr := "no"
			if res.DocumentSaved {
				docStr = "saved"
			}
			if res.Error != "" {
				failures++
			}
			fmt.Fprintf(writer, "%d\t%s\t%d\t%s\t%s\n",
				res.SubscriptionID, res.Status, res.NodeCount, docStr, res.Error)
		}
		writer.Flush()

		if failures > 0 {
			fmt.Printf("%d of %d subscriptions failed.\n", failures, len(results))
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
