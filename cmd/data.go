package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urban-analytics/simflow/internal/fetcher"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Manage flow datasets",
	Long:  "Import, download, and inspect origin-destination flow tables.",
}

// -- data import --

var (
	importCSVPath string
	importDataset string
	importLogged  bool
)

var dataImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a flow table from CSV into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrapf(err, "open %s", importCSVPath)
		}
		defer f.Close() //nolint:errcheck

		flows, err := fetcher.ParseFlows(f, fetcher.FlowCSVOptions{Logged: importLogged})
		if err != nil {
			return eris.Wrap(err, "parse flow csv")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.InsertFlows(ctx, importDataset, flows)
		if err != nil {
			return eris.Wrap(err, "insert flows")
		}

		zap.L().Info("import complete",
			zap.String("dataset", importDataset),
			zap.Int64("rows", n),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

// -- data fetch --

var (
	fetchURL string
	fetchOut string
)

var dataFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download a dataset over HTTP or FTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		u, err := url.Parse(fetchURL)
		if err != nil {
			return eris.Wrapf(err, "parse url %s", fetchURL)
		}

		out := fetchOut
		if out == "" {
			if err := os.MkdirAll(cfg.Fetch.TempDir, 0o755); err != nil {
				return eris.Wrap(err, "create temp dir")
			}
			out = filepath.Join(cfg.Fetch.TempDir, filepath.Base(u.Path))
		}

		timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
		var fc fetcher.Fetcher
		switch u.Scheme {
		case "ftp":
			fc = fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout})
		case "http", "https":
			fc = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: timeout})
		default:
			return eris.Errorf("unsupported url scheme %q", u.Scheme)
		}

		n, err := fc.DownloadToFile(ctx, fetchURL, out)
		if err != nil {
			return eris.Wrap(err, "fetch dataset")
		}

		zap.L().Info("fetch complete",
			zap.String("url", fetchURL),
			zap.String("path", out),
			zap.Int64("bytes", n),
		)
		fmt.Println(out)
		return nil
	},
}

// -- data status --

var dataStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show row counts per dataset",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.DatasetCounts(ctx)
		if err != nil {
			return eris.Wrap(err, "dataset counts")
		}
		if len(counts) == 0 {
			fmt.Fprintln(os.Stderr, "No datasets loaded.")
			return nil
		}
		for ds, n := range counts {
			fmt.Printf("%s\t%d\n", ds, n)
		}
		return nil
	},
}

func init() {
	dataImportCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	dataImportCmd.Flags().StringVar(&importDataset, "dataset", "", "dataset name (required)")
	dataImportCmd.Flags().BoolVar(&importLogged, "logged", false, "covariate columns are already log-transformed")
	_ = dataImportCmd.MarkFlagRequired("csv")
	_ = dataImportCmd.MarkFlagRequired("dataset")

	dataFetchCmd.Flags().StringVar(&fetchURL, "url", "", "dataset URL, http(s):// or ftp:// (required)")
	dataFetchCmd.Flags().StringVar(&fetchOut, "out", "", "output path (default: fetch temp dir)")
	_ = dataFetchCmd.MarkFlagRequired("url")

	dataCmd.AddCommand(dataImportCmd)
	dataCmd.AddCommand(dataFetchCmd)
	dataCmd.AddCommand(dataStatusCmd)
	rootCmd.AddCommand(dataCmd)
}
