/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/perevir/internal/checkpoint"
)

var checkpointDir string

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage job checkpoints",
	Long:  `List and delete the checkpoints left behind by interrupted check jobs.`,
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := checkpoint.NewStore(checkpointDir)
		if err != nil {
			return err
		}

		infos, err := store.List()
		if err != nil {
			return fmt.Errorf("failed to list checkpoints: %w", err)
		}
		if len(infos) == 0 {
			fmt.Println("No checkpoints found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "JOB\tROWS DONE\tSAVED AT")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%d\t%s\n", info.JobID, info.Rows, info.Timestamp.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var checkpointDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a checkpoint by job id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := checkpoint.NewStore(checkpointDir)
		if err != nil {
			return err
		}

		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted checkpoint: %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkpointCmd)

	checkpointCmd.PersistentFlags().StringVar(&checkpointDir, "checkpoint-dir", "./checkpoints", "Checkpoint directory")

	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointDeleteCmd)
}
