/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/blacktop/otad/internal/decode"
	"github.com/blacktop/otad/internal/fetch"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(creditsCmd)
	creditsCmd.Flags().Bool("json", false, "print the decoded credits as JSON")
	viper.BindPFlag("credits.json", creditsCmd.Flags().Lookup("json"))
}

// creditsCmd represents the credits command
var creditsCmd = &cobra.Command{
	Use:   "credits <URL>",
	Short: "Show a contributor credits list",
	Example: heredoc.Doc(`
		❯ otad credits https://example.com/credits.json
	`),
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}

		data, err := fetch.New(conf.FetchConfig()).Fetch(context.Background(), args[0])
		if err != nil {
			return err
		}
		credits, err := decode.ParseCredits(data)
		if err != nil {
			return err
		}

		if viper.GetBool("credits.json") {
			return printJSON(credits)
		}
		for _, c := range credits {
			fmt.Print(color.New(color.Bold).Sprint(c.Name))
			if c.GitHub != "" {
				fmt.Printf(" %s", color.BlueString("https://github.com/%s", c.GitHub))
			}
			fmt.Println()
			if c.Desc != "" {
				fmt.Printf("    %s\n", c.Desc)
			}
		}
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
