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
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/otad/internal/decode"
	"github.com/blacktop/otad/internal/fetch"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(sourceCmd)
	sourceCmd.Flags().Bool("json", false, "print the decoded catalog as JSON")
	viper.BindPFlag("source.json", sourceCmd.Flags().Lookup("json"))
}

// sourceCmd represents the source command
var sourceCmd = &cobra.Command{
	Use:   "source <URL>",
	Short: "List the apps published by a source catalog",
	Example: heredoc.Doc(`
		# List the latest version of every app in a catalog
		❯ otad source https://example.com/apps.json
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
		catalog, err := decode.ParseSourceCatalog(data)
		if err != nil {
			return err
		}

		if viper.GetBool("source.json") {
			return printJSON(catalog)
		}

		log.WithFields(log.Fields{
			"identifier": catalog.Identifier,
			"apps":       len(catalog.Apps),
		}).Info(catalog.Name)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			color.New(color.Bold).Sprint("NAME"),
			color.New(color.Bold).Sprint("BUNDLE ID"),
			color.New(color.Bold).Sprint("VERSION"),
			color.New(color.Bold).Sprint("DATE"),
			color.New(color.Bold).Sprint("SIZE"),
		)
		for _, app := range catalog.Apps {
			v, ok := app.Latest()
			if !ok {
				fmt.Fprintf(w, "%s\t%s\t-\t-\t-\n", app.Name, app.BundleIdentifier)
				continue
			}
			date := "-"
			if !v.Date.IsZero() {
				date = v.Date.Format("2006-01-02")
			}
			size := "-"
			if v.Size > 0 {
				size = humanize.Bytes(uint64(v.Size))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", app.Name, color.CyanString(app.BundleIdentifier), v.Version, date, size)
		}
		return w.Flush()
	},
}
