package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"contest-settlement/internal/commitment"
	"contest-settlement/internal/domain"
)

// answerKeyFile is the YAML layout read by the commit command.
type answerKeyFile struct {
	Hash      string            `yaml:"hash"`
	Questions []domain.Question `yaml:"questions"`
}

// NewCommitCmd prints the commitment root and every proof for an answer key file.
func NewCommitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit <answer-key.yaml>",
		Short: "Compute the answer commitment root and proofs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return writeCommitment(cmd.OutOrStdout(), data)
		},
	}
}

func writeCommitment(w io.Writer, data []byte) error {
	var file answerKeyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse answer key: %w", err)
	}
	hasher, err := commitment.NewHasher(commitment.HashKind(file.Hash))
	if err != nil {
		return err
	}
	tree, err := commitment.Commit(hasher, file.Questions)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "hash: %s\n", hasher.Kind())
	fmt.Fprintf(w, "root: %s\n", tree.Root())
	for _, p := range tree.Proofs() {
		siblings := make([]string, len(p.Proof))
		for i, d := range p.Proof {
			siblings[i] = d.String()
		}
		fmt.Fprintf(w, "%3d %s [%s]\n", p.DisplayOrder, p.Leaf, strings.Join(siblings, ","))
	}
	return nil
}
