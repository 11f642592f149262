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
	"errors"
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/otad/internal/utils"
	"github.com/caarlos0/ctrlc"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(provisionCmd)
	// Provisioning settings
	provisionCmd.Flags().String("url", "", "certificate pack endpoint")
	provisionCmd.Flags().String("proxy", "", "HTTP/HTTPS proxy")
	provisionCmd.Flags().Bool("insecure", false, "do not verify ssl certs")
	provisionCmd.Flags().StringP("output", "o", "", "folder to write the certificate files to")
	provisionCmd.MarkFlagDirname("output")
	// Bind settings
	viper.BindPFlag("provision.url", provisionCmd.Flags().Lookup("url"))
	viper.BindPFlag("provision.proxy", provisionCmd.Flags().Lookup("proxy"))
	viper.BindPFlag("provision.insecure", provisionCmd.Flags().Lookup("insecure"))
	viper.BindPFlag("provision.dir", provisionCmd.Flags().Lookup("output"))
}

// provisionCmd represents the provision command
var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Fetch and store the TLS certificate used by install servers",
	Example: heredoc.Doc(`
		# Refresh the stored certificate
		❯ otad provision

		# Write the certificate files somewhere else
		❯ otad provision --output ./certs
	`),
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}

		store := conf.Store()
		if err := os.MkdirAll(store.Dir(), 0o750); err != nil {
			return fmt.Errorf("failed to create certificate directory: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := ctrlc.Default.Run(ctx, func() error {
			if err := runProvision(ctx, conf); err != nil {
				return fmt.Errorf("provisioning failed (fallback files written to %s): %w", store.Dir(), err)
			}
			return nil
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				log.Warn("Exiting...")
				return nil
			}
			return err
		}

		paths := store.Paths()
		log.Info("Provisioned certificate")
		utils.Indent(log.WithField("path", paths.Cert).Info, 2)("certificate chain")
		utils.Indent(log.WithField("path", paths.Key).Info, 2)("private key")
		utils.Indent(log.WithField("path", paths.CommonName).Info, 2)("common name")
		fmt.Printf("%s %s\n", color.New(color.Bold).Sprint("Domain:"), color.HiGreenString(store.CommonName()))
		return nil
	},
}
