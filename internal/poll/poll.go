package poll

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/WamalwaSydney/civicpulse/internal/domain"
)

// Normalize converts stored options of any historical shape into canonical
// options. It is idempotent. Anything that is not a sequence yields an empty
// slice; sequence elements that are neither strings nor objects are dropped.
// Positions used for default ids and texts count dropped elements too.
func Normalize(raw any) []domain.PollOption {
	switch v := raw.(type) {
	case []domain.PollOption:
		out := make([]domain.PollOption, 0, len(v))
		for i, opt := range v {
			out = append(out, repair(i, opt))
		}
		return out
	case []string:
		out := make([]domain.PollOption, 0, len(v))
		for i, s := range v {
			out = append(out, fromString(i, s))
		}
		return out
	case []any:
		out := make([]domain.PollOption, 0, len(v))
		for i, elem := range v {
			switch e := elem.(type) {
			case string:
				out = append(out, fromString(i, e))
			case map[string]any:
				out = append(out, fromMap(i, e))
			}
		}
		return out
	case json.RawMessage:
		opts, _ := NormalizeJSON(v)
		return opts
	case []byte:
		opts, _ := NormalizeJSON(v)
		return opts
	default:
		return []domain.PollOption{}
	}
}

// NormalizeJSON decodes a stored options document and normalizes it.
// repaired reports whether the canonical encoding differs from raw in
// content, so callers only rewrite rows that actually changed.
func NormalizeJSON(raw []byte) (opts []domain.PollOption, repaired bool) {
	decoded, err := decode(raw)
	if err != nil {
		return []domain.PollOption{}, true
	}

	opts = Normalize(decoded)

	canonical, err := json.Marshal(opts)
	if err != nil {
		return opts, true
	}
	roundTrip, err := decode(canonical)
	if err != nil {
		return opts, true
	}
	return opts, !reflect.DeepEqual(decoded, roundTrip)
}

// Vote returns a copy of the poll's normalized options with optionID
// incremented by one. The poll itself is not modified.
func Vote(p domain.Poll, optionID int, now time.Time) ([]domain.PollOption, error) {
	if !p.IsActive(now) {
		return nil, domain.ErrPollExpired
	}

	opts := Normalize(p.Options)
	for i := range opts {
		if opts[i].ID == optionID {
			opts[i].Votes++
			return opts, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", domain.ErrInvalidOption, optionID)
}

// Tally computes per-option percentages rounded to one decimal place, halves
// to even.
func Tally(opts []domain.PollOption) domain.PollTally {
	opts = Normalize(opts)

	total := 0
	for _, o := range opts {
		total += o.Votes
	}

	tally := domain.PollTally{Options: make([]domain.OptionTally, 0, len(opts)), TotalVotes: total}
	for _, o := range opts {
		var pct float64
		if total > 0 {
			pct = math.RoundToEven(float64(o.Votes)/float64(total)*100*10) / 10
		}
		tally.Options = append(tally.Options, domain.OptionTally{
			ID:         o.ID,
			Text:       o.Text,
			Votes:      o.Votes,
			Percentage: pct,
		})
	}
	return tally
}

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func repair(i int, opt domain.PollOption) domain.PollOption {
	if opt.ID <= 0 {
		opt.ID = i + 1
	}
	if opt.Votes < 0 {
		opt.Votes = 0
	}
	if strings.TrimSpace(opt.Text) == "" {
		opt.Text = defaultText(i)
	}
	return opt
}

func fromString(i int, s string) domain.PollOption {
	return repair(i, domain.PollOption{ID: i + 1, Text: s})
}

func fromMap(i int, m map[string]any) domain.PollOption {
	opt := domain.PollOption{}
	if id, ok := asInt(m["id"]); ok {
		opt.ID = id
	}
	if votes, ok := asInt(m["votes"]); ok {
		opt.Votes = votes
	}
	if text, ok := m["text"].(string); ok {
		opt.Text = text
	}
	return repair(i, opt)
}

// asInt accepts the numeric forms produced by encoding/json, plus digit
// strings, which some legacy rows used for ids.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil {
			return asInt(f)
		}
		return 0, false
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func defaultText(i int) string {
	return "Option " + strconv.Itoa(i+1)
}
