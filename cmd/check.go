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

var checkCmd = &cobra.Command{
	Use:   "check [nodeID]",
	Short: "Runs a liveness check against stored nodes, then exits",
	Long: `Checks the node with the given ID, or every stored node when no ID is
passed, and records the results. A check dials the node's server and port
over TCP and measures how long the connect took.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, _, _, nodeChecker, err := initPanelServices()
		if err != nil {
			logger.Error("Check command: %v", err)
			fmt.Fprintln(os.Stderr, "Error preparing the node checker.")
			os.Exit(1)
		}

		ctx := context.Background()
		var results []models.NodeCheckResult

		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid node ID '%s'.\n", args[0])
				os.Exit(1)
			}
			node, err := database.GetNodeByID(id)
			if err != nil {
				logger.Error("Check command: fetching node %d: %v", id, err)
				fmt.Fprintf(os.Stderr, "Node %d not found.\n", id)
				os.Exit(1)
			}
			results = append(results, nodeChecker.CheckAndStore(ctx, node))
		} else {
			results, err = nodeChecker.CheckAll(ctx)
			if err != nil {
				logger.Error("Check command: checking all nodes: %v", err)
				fmt.Fprintln(os.Stderr, "Error listing nodes.")
				os.Exit(1)
			}
		}

		if len(results) == 0 {
			fmt.Println("No nodes to check.")
			return
		}

		writer := new(tabwriter.Writer)
		writer.Init(os.Stdout, 0, 8, 1, '\t', 0)
		fmt.Fprintln(writer, "ID\tNAME\tALIVE\tLATENCY\tERROR")
		fmt.Fprintln(writer, "--\t----\t-----\t-------\t-----")
		down := 0
		for _, res := range results {
			aliveStr := "yes"
			latencyStr := fmt.Sprintf("%dms", res.LatencyMs)
			if !res.Alive {
				aliveStr = "no"
				latencyStr = "-"
				down++
			}
			displayName := res.Name
			if len(displayName) > 40 {
				displayName = displayName[:37] + "..."
			}
			fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n",
				res.NodeID, displayName, aliveStr, latencyStr, res.Error)
		}
		writer.Flush()

		fmt.Printf("%d checked, %d down.\n", len(results), down)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
