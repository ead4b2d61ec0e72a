package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-settlement/internal/commitment"
	"contest-settlement/internal/domain"
)

const answerKeyYAML = `
hash: sha256
questions:
  - id: q-capital
    display_order: 1
    salt: 4b1f0c9e
    answer: Paris
  - id: q-sum
    display_order: 0
    salt: 0e5c8b33
    answer: "4"
`

func TestCommitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.yaml")
	require.NoError(t, os.WriteFile(path, []byte(answerKeyYAML), 0o600))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"commit", path})
	require.NoError(t, cmd.Execute())

	tree, err := commitment.Build([]domain.Question{
		{DisplayOrder: 0, Salt: "0e5c8b33", CorrectAnswer: "4"},
		{DisplayOrder: 1, Salt: "4b1f0c9e", CorrectAnswer: "Paris"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "hash: sha256", lines[0])
	assert.Equal(t, "root: "+tree.Root().String(), lines[1])
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[2]), "0 "))
}

func TestCommitRejectsBadKey(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, writeCommitment(&out, []byte("questions: [{display_order: 0, answer: a}]")))
	assert.Error(t, writeCommitment(&out, []byte("hash: md5\nquestions: [{display_order: 0, answer: a, salt: s}]")))
	assert.Error(t, writeCommitment(&out, []byte("::")))
}

func TestDistributeCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"distribute", "--pool", "1000000", "--winners", "3",
		"--commission-bps", "500", "--platform-fee-bps", "100"})
	require.NoError(t, cmd.Execute())

	text := out.String()
	for _, want := range []string{"940000", "537142", "268571", "134285"} {
		assert.Contains(t, text, want)
	}
	assert.Regexp(t, `dust\s+2`, text)
}

func TestDistributeDecimals(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeDistribution(&out, distributeOptions{
		pool: 300_000_000, winners: 2, mode: "even", ratio: "0.5",
		maxPlatformFeeBps: 1000, decimals: 8,
	}))
	assert.Contains(t, out.String(), "1.50000000")
	assert.Contains(t, out.String(), "3.00000000")
}

func TestDistributeRejectsBadInput(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, writeDistribution(&out, distributeOptions{pool: 10, winners: 0, mode: "even", ratio: "0.5", maxPlatformFeeBps: 1000}))
	assert.Error(t, writeDistribution(&out, distributeOptions{pool: 10, winners: 2, mode: "lottery", ratio: "0.5", maxPlatformFeeBps: 1000}))
	assert.Error(t, writeDistribution(&out, distributeOptions{pool: 10, winners: 2, mode: "even", ratio: "2", maxPlatformFeeBps: 1000}))
}

func TestLogBackendLevels(t *testing.T) {
	_, err := newLogBackend("chatty")
	assert.Error(t, err)

	logs, err := newLogBackend("")
	require.NoError(t, err)
	assert.NotNil(t, logs.Logger("TEST"))
}
