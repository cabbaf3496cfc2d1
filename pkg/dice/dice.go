// Package dice implements command parsing and resolution for percentile
// skill checks and simple die rolls.
package dice

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/trpgtools/dice-server/pkg/random"
)

// Kind discriminates what a chat message resolves to.
type Kind int

const (
	// KindChat is a plain message with no roll attached.
	KindChat Kind = iota
	// KindCheck is a percentile skill check, e.g. "CC+1<=65".
	KindCheck
	// KindDie is a single die roll, e.g. "1d6".
	KindDie
)

// Level is the tiered outcome of a percentile check.
type Level string

const (
	LevelCritical Level = "critical"
	LevelExtreme  Level = "extreme"
	LevelHard     Level = "hard"
	LevelRegular  Level = "regular"
	LevelFailure  Level = "failure"
	LevelFumble   Level = "fumble"
)

// Success reports whether the level counts as a successful check.
func (l Level) Success() bool {
	switch l {
	case LevelCritical, LevelExtreme, LevelHard, LevelRegular:
		return true
	}
	return false
}

// Command is a parsed dice command.
type Command struct {
	Kind   Kind
	Bonus  int // signed; negative means penalty dice
	Target int
	Faces  int
}

var (
	checkPattern = regexp.MustCompile(`(?i)^CC\s*([+-]?\d+)?\s*<=\s*(\d+)`)
	diePattern   = regexp.MustCompile(`(?i)^1d(\d+)`)
)

// Parse inspects the first whitespace-delimited token of a message. Anything
// that is not a recognized dice command is plain chat; Parse never fails.
func Parse(text string) Command {
	token := strings.TrimSpace(text)
	if fields := strings.Fields(token); len(fields) > 0 {
		token = fields[0]
	}

	if m := checkPattern.FindStringSubmatch(token); m != nil {
		bonus := 0
		if m[1] != "" {
			bonus, _ = strconv.Atoi(m[1])
		}
		target, _ := strconv.Atoi(m[2])
		return Command{Kind: KindCheck, Bonus: bonus, Target: target}
	}
	if m := diePattern.FindStringSubmatch(token); m != nil {
		faces, _ := strconv.Atoi(m[1])
		return Command{Kind: KindDie, Faces: faces}
	}
	return Command{Kind: KindChat}
}

// CheckResult is the structured outcome of a percentile check.
type CheckResult struct {
	Value   int   `json:"value"`
	Success bool  `json:"success"`
	Target  int   `json:"target"`
	Dice    []int `json:"dice"`
	Level   Level `json:"result_level"`
}

// Render produces the chat-visible form of the check.
func (r CheckResult) Render() string {
	verdict := "FAILURE"
	if r.Success {
		verdict = "SUCCESS"
	}
	return fmt.Sprintf("CC<=%d (%d) %s", r.Target, r.Value, verdict)
}

// Classify grades a rolled value against the target.
func Classify(value, target int) Level {
	if value == 1 {
		return LevelCritical
	}
	fumble := value == 100
	if target < 50 && value >= 96 {
		fumble = true
	}
	if fumble {
		return LevelFumble
	}
	switch {
	case value <= target/5:
		return LevelExtreme
	case value <= target/2:
		return LevelHard
	case value <= target:
		return LevelRegular
	}
	return LevelFailure
}

// RollCheck resolves a percentile check. It draws |bonus|+2 digits in [0,9]
// strictly in sequence (the seeded source is stateful, so draw order
// determines the result). The last digit is the shared units digit; every
// drawn digit forms a candidate die digit*10+units, with 0 mapped to 100.
// Penalty keeps the worst candidate, bonus keeps the best.
func RollCheck(ctx context.Context, src random.Source, bonus, target int) (CheckResult, error) {
	draws := bonus
	if draws < 0 {
		draws = -draws
	}
	draws += 2

	digits := make([]int, draws)
	for i := range digits {
		v, err := src.Draw(ctx)
		if err != nil {
			return CheckResult{}, fmt.Errorf("draw digit: %w", err)
		}
		digits[i] = int(v * 10)
	}

	units := digits[len(digits)-1]
	candidates := make([]int, len(digits))
	for i, tens := range digits {
		die := tens*10 + units
		if die == 0 {
			die = 100
		}
		candidates[i] = die
	}

	value := candidates[0]
	for _, die := range candidates[1:] {
		if bonus < 0 {
			if die > value {
				value = die
			}
		} else if die < value {
			value = die
		}
	}

	level := Classify(value, target)
	return CheckResult{
		Value:   value,
		Success: level.Success(),
		Target:  target,
		Dice:    candidates,
		Level:   level,
	}, nil
}

// RollDie resolves a single die roll in [1,faces].
func RollDie(ctx context.Context, src random.Source, faces int) (int, error) {
	v, err := src.Draw(ctx)
	if err != nil {
		return 0, fmt.Errorf("draw die: %w", err)
	}
	return int(v*float64(faces)) + 1, nil
}

// RenderDie produces the chat-visible form of a die roll.
func RenderDie(faces, result int) string {
	return fmt.Sprintf("1d%d: %d", faces, result)
}
