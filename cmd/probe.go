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
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valpere/perevir/internal/llm"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the API connection",
	Long: `Send a minimal request to the configured endpoint and report whether the
connection, key and model work.

Example:
  perevir probe --provider deepseek --api-key sk-...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConnection()
		if err != nil {
			return err
		}

		client := llm.New(cfg)
		ok, msg := client.TestConnection(context.Background())
		fmt.Println(msg)
		if !ok {
			return fmt.Errorf("connection test failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVar(&checkProvider, "provider", "", "Preset provider: openai, deepseek, qwen, moonshot, glm")
	probeCmd.Flags().StringVar(&checkBaseURL, "base-url", "", "API base URL (overrides the provider preset)")
	probeCmd.Flags().StringVar(&checkAPIKey, "api-key", "", "API key")
	probeCmd.Flags().StringVar(&checkModel, "model", "", "Model name (default from the provider preset)")
}
