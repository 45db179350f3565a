package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/filtering"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Fetch the RFP feed once and store new listings",
	Run: func(cmd *cobra.Command, _ []string) {
		scrape(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().Bool("include-known", false, "do not drop listings whose link is already stored")
	scrapeCmd.Flags().Bool("report", false, "print saved listings grouped by agency")
	scrapeCmd.Flags().Bool("dump", false, "dump saved listings to a temporary json file")
}

func scrape(cmd *cobra.Command) {
	ctx := context.Background()

	log, config := setup("scrape")
	defer log.Sync()

	st, err := openStore(ctx, config, log)
	if err != nil {
		log.Fatal("opening store", zap.Error(err))
	}
	defer st.Close()

	includeKnown, _ := cmd.Flags().GetBool("include-known")
	service := newIngest(config, st, includeKnown, log)

	for _, status := range filtering.Describe(service.Steps()) {
		log.Info("ingestion step",
			zap.String("name", status.Name),
			zap.Bool("enabled", status.Enabled),
			zap.String("reason", status.Reason),
			zap.Any("details", status.Details),
		)
	}

	saved, err := service.Run(ctx)
	if err != nil {
		log.Fatal("scraping failed", zap.Error(err))
	}

	log.Info("scraped and saved listings", zap.Int("count", saved.Len()))

	if report, _ := cmd.Flags().GetBool("report"); report && saved.Len() > 0 {
		pretty, _ := json.MarshalIndent(saved.ReportByAgency(), "", "  ")
		log.Info(string(pretty), zap.Int("listings count", saved.Len()))
	}

	if dump, _ := cmd.Flags().GetBool("dump"); dump && saved.Len() > 0 {
		filename, err := saved.DumpToTmpFile()
		if err != nil {
			log.Fatal("dump results to file", zap.Error(err))
		}
		log.Info("dumping result to file", zap.String("filename", filename))
	}
}
