// Package scoring checks a player's answer sheet against the revealed answer key.
package scoring

import (
	"fmt"

	"contest-settlement/internal/commitment"
	"contest-settlement/internal/domain"
)

// VerifyAndScore scores sub against questions with the default hasher.
func VerifyAndScore(sub domain.PlayerSubmission, questions []domain.Question, root domain.Digest) (domain.ScoredSubmission, error) {
	return VerifyAndScoreWith(commitment.Default, sub, questions, root)
}

// VerifyAndScoreWith rebuilds the commitment from the revealed key, checks it
// matches root, and marks each submitted answer correct or not.
func VerifyAndScoreWith(h commitment.Hasher, sub domain.PlayerSubmission, questions []domain.Question, root domain.Digest) (domain.ScoredSubmission, error) {
	byOrder, err := matchQuestions(sub, questions)
	if err != nil {
		return domain.ScoredSubmission{}, err
	}

	tree, err := commitment.Commit(h, questions)
	if err != nil {
		return domain.ScoredSubmission{}, err
	}
	if tree.Root() != root {
		return domain.ScoredSubmission{}, fmt.Errorf("%w: rebuilt %s, published %s", domain.ErrCommitmentMismatch, tree.Root(), root)
	}

	scored := domain.ScoredSubmission{
		PlayerID:   sub.PlayerID,
		FinishedAt: sub.FinishedAt,
		Answers:    make([]domain.VerifiedAnswer, 0, len(sub.Answers)),
	}
	for _, answer := range sub.Answers {
		q := byOrder[answer.DisplayOrder]
		proof, err := tree.Prove(answer.DisplayOrder)
		if err != nil {
			return domain.ScoredSubmission{}, err
		}
		correct := IsCorrect(answer.Answer, q.CorrectAnswer)
		if correct {
			scored.NumCorrect++
		}
		scored.Answers = append(scored.Answers, domain.VerifiedAnswer{
			DisplayOrder: answer.DisplayOrder,
			Answer:       answer.Answer,
			QuestionID:   q.ID,
			Proof:        proof,
			IsCorrect:    correct,
		})
	}
	return scored, nil
}

// IsCorrect compares answers ignoring case and surrounding whitespace.
func IsCorrect(submitted, correct string) bool {
	return domain.NormalizeAnswer(submitted) == domain.NormalizeAnswer(correct)
}

// matchQuestions requires the submission to cover every display order exactly once.
func matchQuestions(sub domain.PlayerSubmission, questions []domain.Question) (map[int]domain.Question, error) {
	byOrder := make(map[int]domain.Question, len(questions))
	for _, q := range questions {
		byOrder[q.DisplayOrder] = q
	}
	if len(sub.Answers) != len(byOrder) || len(byOrder) != len(questions) {
		return nil, fmt.Errorf("%w: %d answers for %d questions", domain.ErrSubmissionQuestionMismatch, len(sub.Answers), len(questions))
	}

	seen := make(map[int]struct{}, len(sub.Answers))
	for _, answer := range sub.Answers {
		if _, ok := byOrder[answer.DisplayOrder]; !ok {
			return nil, fmt.Errorf("%w: no question at display order %d", domain.ErrSubmissionQuestionMismatch, answer.DisplayOrder)
		}
		if _, dup := seen[answer.DisplayOrder]; dup {
			return nil, fmt.Errorf("%w: display order %d answered twice", domain.ErrSubmissionQuestionMismatch, answer.DisplayOrder)
		}
		seen[answer.DisplayOrder] = struct{}{}
	}
	return byOrder, nil
}
