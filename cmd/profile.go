package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/rfp"
	"github.com/spigell/rfp-matcher/internal/utils"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage business profiles",
}

var profileImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Store a profile built from a capability statement or a json document",
	Run: func(cmd *cobra.Command, _ []string) {
		importProfile(cmd)
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored profile of a user",
	Run: func(cmd *cobra.Command, _ []string) {
		showProfile(cmd)
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileImportCmd, profileShowCmd)

	profileCmd.PersistentFlags().StringP("user", "u", "", "user id the profile belongs to")
	profileCmd.MarkPersistentFlagRequired("user")

	profileImportCmd.Flags().StringP("statement", "s", "", "capability statement text file analyzed by the ai provider")
	profileImportCmd.Flags().String("document", "", "profile json document stored as is")
	profileImportCmd.MarkFlagsOneRequired("statement", "document")
	profileImportCmd.MarkFlagsMutuallyExclusive("statement", "document")
}

func importProfile(cmd *cobra.Command) {
	ctx := context.Background()

	log, config := setup("profile import")
	defer log.Sync()

	user, _ := cmd.Flags().GetString("user")
	statementFile, _ := cmd.Flags().GetString("statement")
	documentFile, _ := cmd.Flags().GetString("document")

	var (
		profile *rfp.BusinessProfile
		err     error
	)
	if statementFile != "" {
		profile, err = analyzeStatement(ctx, config, statementFile, log)
	} else {
		profile, err = readDocument(documentFile)
	}
	if err != nil {
		log.Fatal("building profile", zap.Error(err))
	}
	profile.UserID = user

	doc, err := profile.Document()
	if err != nil {
		log.Fatal("encoding profile", zap.Error(err))
	}

	st, err := openStore(ctx, config, log)
	if err != nil {
		log.Fatal("opening store", zap.Error(err))
	}
	defer st.Close()

	if err := st.PutProfile(ctx, user, doc); err != nil {
		log.Fatal("saving profile", zap.Error(err))
	}

	log.Info("profile saved",
		zap.String("user", user),
		zap.String("company", profile.CompanyName),
		zap.Strings("naics_codes", profile.NAICSCodes),
		zap.Int("keywords", len(profile.Keywords)),
		zap.Strings("certifications", profile.CertificationNames()),
	)
}

func analyzeStatement(ctx context.Context, config *Config, path string, log *zap.Logger) (*rfp.BusinessProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading statement: %w", err)
	}

	statement := strings.TrimSpace(string(data))
	if statement == "" {
		return nil, errors.New("statement file is empty")
	}

	log.Debug("analyzing statement", utils.PreviewField("statement", statement, 200))

	analyzer, err := newAnalyzer(ctx, config.AI, log)
	if err != nil {
		return nil, fmt.Errorf("building profile analyzer: %w", err)
	}

	profile, err := analyzer.Analyze(ctx, statement)
	if err != nil {
		return nil, err
	}
	profile.StatementHash = rfp.StatementHash(statement)

	return profile, nil
}

func readDocument(path string) (*rfp.BusinessProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}

	return rfp.DecodeProfile(doc)
}

func showProfile(cmd *cobra.Command) {
	ctx := context.Background()

	log, config := setup("profile show")
	defer log.Sync()

	st, err := openStore(ctx, config, log)
	if err != nil {
		log.Fatal("opening store", zap.Error(err))
	}
	defer st.Close()

	user, _ := cmd.Flags().GetString("user")
	doc, ok, err := st.GetProfile(ctx, user)
	if err != nil {
		log.Fatal("getting profile", zap.Error(err))
	}
	if !ok {
		log.Info("exiting", zap.String("reason", "no profile stored for user"), zap.String("user", user))
		return
	}

	profile, err := rfp.DecodeProfile(doc)
	if err != nil {
		log.Fatal("decoding profile", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(profile); err != nil {
		log.Fatal("encoding profile", zap.Error(err))
	}
}
