package tools

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
)

var diceRe = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)

// RollResult is the outcome of one dice-notation roll.
type RollResult struct {
	Notation string `json:"notation"`
	Rolls    []int  `json:"rolls"`
	Modifier int    `json:"modifier"`
	Total    int    `json:"total"`
}

// Roll evaluates standard dice notation like "2d6+1" or "d20".
func Roll(rng *rand.Rand, notation string) (RollResult, error) {
	m := diceRe.FindStringSubmatch(notation)
	if m == nil {
		return RollResult{}, fmt.Errorf("invalid dice notation %q", notation)
	}
	count := 1
	if m[1] != "" {
		count, _ = strconv.Atoi(m[1])
	}
	sides, _ := strconv.Atoi(m[2])
	if count < 1 || count > 100 || sides < 2 || sides > 1000 {
		return RollResult{}, fmt.Errorf("dice notation %q out of range", notation)
	}
	mod := 0
	if m[3] != "" {
		mod, _ = strconv.Atoi(m[3])
	}
	res := RollResult{Notation: notation, Modifier: mod}
	for i := 0; i < count; i++ {
		r := rng.Intn(sides) + 1
		res.Rolls = append(res.Rolls, r)
		res.Total += r
	}
	res.Total += mod
	return res, nil
}
