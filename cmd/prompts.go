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

	"github.com/valpere/perevir/internal/prompts"
)

var promptsShowName string

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List the builtin prompt templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		if promptsShowName != "" {
			tpl, ok := prompts.Get(promptsShowName)
			if !ok {
				return fmt.Errorf("unknown prompt %q", promptsShowName)
			}
			fmt.Printf("# %s: %s\n\n", tpl.Name, tpl.Description)
			fmt.Printf("## System\n%s\n\n## User\n%s\n", tpl.System, tpl.User)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDESCRIPTION")
		for _, name := range prompts.Names() {
			tpl, _ := prompts.Get(name)
			fmt.Fprintf(w, "%s\t%s\n", tpl.Name, tpl.Description)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)

	promptsCmd.Flags().StringVar(&promptsShowName, "show", "", "Print the full text of one template")
}
