package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/store"
)

func init() {
	knowledgeImport := &cobra.Command{
		Use:   "import [file]",
		Short: "Import knowledge from JSON",
		Long: "Import knowledge from a file or stdin. Accepts the array produced by export, or a " +
			"seed object {\"topic\": {\"category\": content, ...}, ...}. Existing entries are replaced.",
		Args: cobra.MaximumNArgs(1),
		Run:  runKnowledgeImport,
	}

	casesImport := &cobra.Command{
		Use:   "import [file]",
		Short: "Import historical cases from JSON",
		Long: "Import cases from a file or stdin. Accepts an array of cases or " +
			"{\"historical_cases\": [...]}. Cases with a known id are replaced.",
		Args: cobra.MaximumNArgs(1),
		Run:  runCasesImport,
	}

	knowledgeCmd.AddCommand(knowledgeImport)
	casesCmd.AddCommand(casesImport)
}

func argOrStdin(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func runKnowledgeImport(cmd *cobra.Command, args []string) {
	data, err := readInput(argOrStdin(args))
	if err != nil {
		exitErr("read input", err)
	}
	entries, err := decodeKnowledge(data)
	if err != nil {
		exitErr("parse json", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	imported, _, err := s.ImportSeed(cmd.Context(), &store.Seed{Knowledge: entries})
	if err != nil {
		exitErr("import", err)
	}
	fmt.Printf(`{"ok":true,"imported":%d}`+"\n", imported)
}

func runCasesImport(cmd *cobra.Command, args []string) {
	data, err := readInput(argOrStdin(args))
	if err != nil {
		exitErr("read input", err)
	}
	cases, err := decodeCases(data)
	if err != nil {
		exitErr("parse json", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	_, imported, err := s.ImportSeed(cmd.Context(), &store.Seed{Cases: cases})
	if err != nil {
		exitErr("import", err)
	}
	fmt.Printf(`{"ok":true,"imported":%d}`+"\n", imported)
}

// decodeKnowledge reads an entry array or a topic -> category -> content
// seed object. Seed entries come out ordered by topic and category.
func decodeKnowledge(data []byte) ([]model.KnowledgeEntry, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var entries []model.KnowledgeEntry
		if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	var seed map[string]map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &seed); err != nil {
		return nil, err
	}
	var entries []model.KnowledgeEntry
	for topic, categories := range seed {
		for category, content := range categories {
			entries = append(entries, model.KnowledgeEntry{Topic: topic, Category: category, Content: content})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Topic != entries[j].Topic {
			return entries[i].Topic < entries[j].Topic
		}
		return entries[i].Category < entries[j].Category
	})
	return entries, nil
}

func decodeCases(data []byte) ([]model.HistoricalCase, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var cases []model.HistoricalCase
		if err := json.Unmarshal([]byte(trimmed), &cases); err != nil {
			return nil, err
		}
		return cases, nil
	}
	var seed store.Seed
	if err := json.Unmarshal([]byte(trimmed), &seed); err != nil {
		return nil, err
	}
	return seed.Cases, nil
}
