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
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/atotto/clipboard"
	"github.com/blacktop/otad/internal/config"
	"github.com/blacktop/otad/internal/fetch"
	"github.com/blacktop/otad/internal/ipa"
	"github.com/blacktop/otad/internal/metrics"
	"github.com/blacktop/otad/internal/provision"
	"github.com/blacktop/otad/internal/server"
	"github.com/blacktop/otad/internal/utils"
	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gen2brain/beeep"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	qrSize          = 512
)

func init() {
	rootCmd.AddCommand(serveCmd)
	// Server settings
	serveCmd.Flags().String("host", server.DefaultHost, "URL host used when serving without TLS")
	serveCmd.Flags().Bool("plain", false, "serve over plain HTTP (the device will refuse to install)")
	// Command-specific flags
	serveCmd.Flags().Bool("skip-provision", false, "use the stored certificate without contacting the provisioning endpoint")
	serveCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	serveCmd.Flags().String("icon", "", "image used for the manifest icons")
	serveCmd.MarkFlagFilename("icon")
	serveCmd.Flags().String("bundle-id", "", "override the bundle identifier read from the IPA")
	serveCmd.Flags().String("app-version", "", "override the version read from the IPA")
	serveCmd.Flags().String("name", "", "override the display name read from the IPA")
	serveCmd.Flags().Bool("qr", false, "print the install page URL as a QR code")
	serveCmd.Flags().String("qr-output", "", "write the install page QR code to this PNG file")
	serveCmd.Flags().Bool("notify", false, "send a desktop notification when the install finishes")
	serveCmd.Flags().Bool("copy", false, "copy the install page URL to the clipboard")
	// Bind settings
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	// Bind command-specific flags
	viper.BindPFlag("serve.plain", serveCmd.Flags().Lookup("plain"))
	viper.BindPFlag("serve.skip-provision", serveCmd.Flags().Lookup("skip-provision"))
	viper.BindPFlag("serve.metrics-addr", serveCmd.Flags().Lookup("metrics-addr"))
	viper.BindPFlag("serve.icon", serveCmd.Flags().Lookup("icon"))
	viper.BindPFlag("serve.bundle-id", serveCmd.Flags().Lookup("bundle-id"))
	viper.BindPFlag("serve.app-version", serveCmd.Flags().Lookup("app-version"))
	viper.BindPFlag("serve.name", serveCmd.Flags().Lookup("name"))
	viper.BindPFlag("serve.qr", serveCmd.Flags().Lookup("qr"))
	viper.BindPFlag("serve.qr-output", serveCmd.Flags().Lookup("qr-output"))
	viper.BindPFlag("serve.notify", serveCmd.Flags().Lookup("notify"))
	viper.BindPFlag("serve.copy", serveCmd.Flags().Lookup("copy"))
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve <IPA>",
	Short: "Serve an IPA for over-the-air install",
	Example: heredoc.Doc(`
		# Provision a certificate and serve an app
		❯ otad serve ./MyApp.ipa

		# Reuse the stored certificate and expose metrics
		❯ otad serve --skip-provision --metrics-addr :9090 ./MyApp.ipa

		# Override the manifest metadata and icon
		❯ otad serve --name "My App" --icon ./icon.png ./MyApp.ipa

		# Show a QR code to scan with the device camera
		❯ otad serve --qr ./MyApp.ipa
	`),
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		if viper.GetBool("serve.plain") {
			conf.Server.UseProvisionedTLS = false
		}
		sconf := conf.ServerConfig()

		ipaPath, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve IPA path: %v", err)
		}
		app, err := loadApp(ipaPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := conf.Store()
		if sconf.TLSEnabled() {
			if err := os.MkdirAll(store.Dir(), 0o750); err != nil {
				return fmt.Errorf("failed to create certificate directory: %v", err)
			}
			if !viper.GetBool("serve.skip-provision") {
				if err := runProvision(ctx, conf); err != nil {
					log.WithError(err).Warn("Provisioning failed, continuing with the stored certificate")
				}
			}
		}

		sess, err := server.NewSession(ctx, sconf, store, app)
		if err != nil {
			return fmt.Errorf("failed to start install server: %w", err)
		}
		if err := printSession(sess); err != nil {
			log.WithError(err).Warn("failed to render QR code")
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		g, gctx := errgroup.WithContext(ctx)

		if addr := viper.GetString("serve.metrics-addr"); addr != "" {
			msrv := &http.Server{
				Addr:              addr,
				Handler:           metrics.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			g.Go(func() error {
				log.WithField("addr", addr).Info("Serving metrics")
				if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer scancel()
				return msrv.Shutdown(sctx)
			})
		}

		g.Go(func() error {
			defer cancel()
			st, err := sess.Wait(gctx)
			if err != nil {
				log.Warn("Interrupted")
				return nil
			}
			notify(sess.Metadata(), st)
			if !st.Success() {
				return fmt.Errorf("install did not complete: %s", st)
			}
			log.WithField("app", sess.Metadata().String()).Info("Install payload delivered")
			return nil
		})

		gerr := g.Wait()

		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := sess.Shutdown(sctx); err != nil {
			log.WithError(err).Warn("failed to shut down install server")
		}
		return gerr
	},
}

func loadApp(path string) (server.App, error) {
	app := server.App{PackagePath: path}

	fi, err := os.Stat(path)
	if err != nil {
		return app, fmt.Errorf("failed to stat IPA: %v", err)
	}
	meta, err := ipa.ReadMetadata(path)
	if err != nil {
		log.WithError(err).Warn("Failed to read app metadata from IPA")
		meta = &ipa.Metadata{}
	}
	if v := viper.GetString("serve.bundle-id"); v != "" {
		meta.BundleID = v
	}
	if v := viper.GetString("serve.app-version"); v != "" {
		meta.Version = v
	}
	if v := viper.GetString("serve.name"); v != "" {
		meta.DisplayName = v
	}
	if err := meta.Validate(); err != nil {
		return app, fmt.Errorf("%v (use --bundle-id, --app-version or --name)", err)
	}
	app.Metadata = *meta

	icons, err := ipa.Icons(viper.GetString("serve.icon"))
	if err != nil {
		return app, err
	}
	app.Icons = icons

	log.WithFields(log.Fields{
		"bundle_id": meta.BundleID,
		"version":   meta.Version,
		"size":      humanize.Bytes(uint64(fi.Size())),
	}).Info(meta.DisplayName)

	return app, nil
}

func runProvision(ctx context.Context, conf *config.Config) error {
	p := provision.NewProvisioner(fetch.New(conf.FetchConfig()), conf.Store(), conf.ProvisionConfig())

	s := spinner.New(spinner.CharSets[38], 100*time.Millisecond)
	s.Prefix = color.BlueString("   • Provisioning certificate from %s ", conf.Provision.URL)
	if !viper.GetBool("verbose") {
		s.Start()
	}
	err := p.Run(ctx)
	s.Stop()
	return err
}

func printSession(sess *server.Session) error {
	fmt.Println()
	fmt.Printf("%s %s\n", color.New(color.Bold).Sprint("Install page:"), color.HiGreenString(sess.InstallURL()))
	fmt.Printf("%s %s\n", color.New(color.Bold).Sprint("Manifest:    "), color.HiBlueString(sess.ManifestURL()))
	fmt.Printf("%s %s\n", color.New(color.Bold).Sprint("Deep link:   "), color.HiBlueString(sess.DeepLink()))
	fmt.Println()

	if out := viper.GetString("serve.qr-output"); out != "" {
		png, err := utils.QRCodePNG(sess.InstallURL(), qrSize)
		if err != nil {
			return err
		}
		log.Infof("Writing QR code to %s", out)
		if err := os.WriteFile(out, png, 0o644); err != nil {
			return err
		}
	}
	if viper.GetBool("serve.copy") {
		if err := clipboard.WriteAll(sess.InstallURL()); err != nil {
			log.WithError(err).Warn("failed to copy install URL to the clipboard")
		} else {
			log.Info("Copied install URL to the clipboard")
		}
	}
	if viper.GetBool("serve.qr") {
		if utils.SupportsInlineImages() {
			png, err := utils.QRCodePNG(sess.InstallURL(), qrSize)
			if err != nil {
				return err
			}
			return utils.WriteInlineImage(os.Stdout, png, qrSize/2, qrSize/2)
		}
		qr, err := utils.QRCodeText(sess.InstallURL(), true)
		if err != nil {
			return err
		}
		fmt.Println(qr)
	}
	return nil
}

func notify(meta ipa.Metadata, st server.Status) {
	if !viper.GetBool("serve.notify") {
		return
	}
	msg := fmt.Sprintf("%s was delivered to the device", meta.DisplayName)
	if !st.Success() {
		msg = fmt.Sprintf("%s failed: %s", meta.DisplayName, st)
	}
	if err := beeep.Notify("otad", msg, ""); err != nil {
		log.WithError(err).Debug("failed to send desktop notification")
	}
}
