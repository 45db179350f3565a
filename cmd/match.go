package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/matcher"
	"github.com/spigell/rfp-matcher/internal/rfp"
)

const (
	PromptBrowse        = "Browse matches"
	PromptMatchesToFile = "Dump matches to file"
	PromptExit          = "Exit"
	PromptBack          = "back"
)

var errExit = errors.New("exit requested")

var matchPrompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptBrowse, PromptMatchesToFile, PromptExit},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank active listings against a user's business profile",
	Run: func(cmd *cobra.Command, _ []string) {
		match(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("user", "u", "", "user id whose profile is matched")
	matchCmd.Flags().IntP("limit", "l", 0, "maximum number of matches (default matching.limit)")
	matchCmd.Flags().StringP("output", "o", outputMenu, "result output: menu or json")
	matchCmd.MarkFlagRequired("user")
}

const (
	outputMenu = "menu"
	outputJSON = "json"
)

func outputFormat(cmd *cobra.Command) (string, error) {
	output, _ := cmd.Flags().GetString("output")
	switch output := strings.ToLower(strings.TrimSpace(output)); output {
	case outputMenu, outputJSON:
		return output, nil
	default:
		return "", fmt.Errorf("unknown output %q: want %s or %s", output, outputMenu, outputJSON)
	}
}

func match(cmd *cobra.Command) {
	ctx := context.Background()

	log, config := setup("match")
	defer log.Sync()

	st, err := openStore(ctx, config, log)
	if err != nil {
		log.Fatal("opening store", zap.Error(err))
	}
	defer st.Close()

	m, err := newMatcher(ctx, config, st, log)
	if err != nil {
		log.Fatal("building matcher", zap.Error(err))
	}

	output, err := outputFormat(cmd)
	if err != nil {
		log.Fatal("checking flags", zap.Error(err))
	}

	user, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")

	outcome := m.Evaluate(ctx, user, limit)
	switch outcome.Kind {
	case matcher.KindFailed:
		log.Fatal("matching failed", zap.Error(outcome.Err))
	case matcher.KindNoProfile:
		log.Info("exiting", zap.String("reason", "no profile stored for user"), zap.String("user", user))
		return
	}

	if output == outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"matches": outcome.Matches}); err != nil {
			log.Fatal("encoding matches", zap.Error(err))
		}
		return
	}

	if outcome.Kind == matcher.KindEmpty {
		log.Info("exiting", zap.String("reason", "no listing scored above the threshold"))
		return
	}

	log.Info("found matches", zap.Int("count", len(outcome.Matches)))

	for {
		_, action, err := matchPrompt.Run()
		if err != nil {
			log.Fatal("exiting", zap.Error(err))
		}

		if err := handleMatchAction(action, log, outcome.Matches); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			log.Fatal("exiting", zap.Error(err))
		}
	}
}

func handleMatchAction(action string, log *zap.Logger, matches []rfp.MatchResult) error {
	switch action {
	case PromptBrowse:
		return browse(log, matches)
	case PromptMatchesToFile:
		filename, err := dumpMatches(matches)
		if err != nil {
			return fmt.Errorf("dump matches to file: %w", err)
		}
		log.Info("dumping matches to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		log.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func browse(log *zap.Logger, matches []rfp.MatchResult) error {
	items := make([]string, 0, len(matches)+1)
	for _, m := range matches {
		items = append(items, matchLabel(m))
	}

	for {
		matchSelect := promptui.Select{
			Label: "Choose a listing and press ENTER",
			Items: append(items, PromptBack),
			Size:  10,
		}

		_, selected, err := matchSelect.Run()
		if err != nil {
			return err
		}

		if selected == PromptBack {
			return nil
		}

		id := strings.Split(selected, " ")[0]
		found := findMatch(matches, id)
		if found == nil {
			return fmt.Errorf("there is no such listing id %s", id)
		}

		log.Info("listing",
			zap.String("title", found.Title),
			zap.String("agency", found.Agency),
			zap.Int("score", found.MatchScore),
			zap.String("due", found.DueDate),
			zap.String("link", found.Link),
			zap.Strings("reasons", found.Reasons),
		)
	}
}

func matchLabel(m rfp.MatchResult) string {
	return fmt.Sprintf("%s [%d] %s / %s / due %s", m.ID, m.MatchScore, m.Title, m.Agency, m.DueDate)
}

func findMatch(matches []rfp.MatchResult, id string) *rfp.MatchResult {
	for i := range matches {
		if matches[i].ID == id {
			return &matches[i]
		}
	}
	return nil
}

func dumpMatches(matches []rfp.MatchResult) (string, error) {
	file, err := os.CreateTemp("", "matches_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(matches); err != nil {
		return "", err
	}
	return file.Name(), nil
}
