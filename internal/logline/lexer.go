// Package logline classifies a single raw log line into one of the fixed
// shapes a validator/runtime emits (spec §4.1). Every other shape is a
// hard parse error - there is no lenient fallback.
package logline

import (
	"strconv"
	"strings"

	"github.com/oriys/txgraph/internal/parseerr"
	"github.com/oriys/txgraph/internal/txtypes"
)

// Kind discriminates the Line sum type.
type Kind int

const (
	Truncated Kind = iota
	Invoke
	Success
	Failed
	FailedComplete
	LogMsg
	DataMsg
	ReturnMsg
	Consumed
)

// Line is the classified form of one raw log line.
type Line struct {
	Kind          Kind
	ProgramID     txtypes.ProgramID // Invoke, Success, Failed, Consumed, ReturnMsg
	InvokeLevel   int               // Invoke
	Text          string            // Failed/FailedComplete (message), LogMsg, DataMsg, ReturnMsg (payload)
	ConsumedUnits uint64            // Consumed
	ConsumedTotal uint64            // Consumed

	// Raw preserves the original line for error context and downstream logging.
	Raw string
}

const (
	prefixProgram        = "Program "
	exactTruncated       = "Log truncated"
	prefixLogMsg         = "Program log: "
	prefixDataMsg        = "Program data: "
	prefixReturnMsg      = "Program return: "
	prefixFailedComplete = "Program failed to complete: "
)

// Classify parses one raw log line (without its trailing newline) into a
// Line. index is the line's position in the stream, used only for error
// context.
func Classify(index int, raw string) (Line, error) {
	if raw == exactTruncated {
		return Line{Kind: Truncated, Raw: raw}, nil
	}

	if rest, ok := cut(raw, prefixFailedComplete); ok {
		return Line{Kind: FailedComplete, Text: rest, Raw: raw}, nil
	}
	if rest, ok := cut(raw, prefixLogMsg); ok {
		return Line{Kind: LogMsg, Text: rest, Raw: raw}, nil
	}
	if rest, ok := cut(raw, prefixDataMsg); ok {
		return Line{Kind: DataMsg, Text: rest, Raw: raw}, nil
	}
	if rest, ok := cut(raw, prefixReturnMsg); ok {
		pidText, text, ok := splitFirstSpace(rest)
		if !ok {
			return Line{}, &parseerr.BadLine{Index: index, Text: raw, Reason: "return line missing pubkey/payload separator"}
		}
		pid, err := txtypes.ParseProgramID(pidText)
		if err != nil {
			return Line{}, &parseerr.WrongPubkeySize{Index: index, Field: pidText}
		}
		return Line{Kind: ReturnMsg, ProgramID: pid, Text: text, Raw: raw}, nil
	}

	if !strings.HasPrefix(raw, prefixProgram) {
		return Line{}, &parseerr.BadLine{Index: index, Text: raw, Reason: "unrecognized line prefix"}
	}
	rest := raw[len(prefixProgram):]

	// "Program <B58> invoke [<n>]"
	if pidText, tail, ok := splitFirstSpace(rest); ok && strings.HasPrefix(tail, "invoke [") && strings.HasSuffix(tail, "]") {
		pid, err := txtypes.ParseProgramID(pidText)
		if err != nil {
			return Line{}, &parseerr.WrongPubkeySize{Index: index, Field: pidText}
		}
		levelText := strings.TrimSuffix(strings.TrimPrefix(tail, "invoke ["), "]")
		level, err := strconv.Atoi(levelText)
		if err != nil || level < 1 {
			return Line{}, &parseerr.BadLine{Index: index, Text: raw, Reason: "invoke level is not a positive integer"}
		}
		return Line{Kind: Invoke, ProgramID: pid, InvokeLevel: level, Raw: raw}, nil
	}

	// "Program <B58> success"
	if pidText, ok := cutSuffix(rest, " success"); ok {
		pid, err := txtypes.ParseProgramID(pidText)
		if err != nil {
			return Line{}, &parseerr.WrongPubkeySize{Index: index, Field: pidText}
		}
		return Line{Kind: Success, ProgramID: pid, Raw: raw}, nil
	}

	// "Program <B58> failed: <msg>"
	if pidText, tail, ok := cutMid(rest, " failed: "); ok {
		pid, err := txtypes.ParseProgramID(pidText)
		if err != nil {
			return Line{}, &parseerr.WrongPubkeySize{Index: index, Field: pidText}
		}
		return Line{Kind: Failed, ProgramID: pid, Text: tail, Raw: raw}, nil
	}

	// "Program <B58> consumed <u64> of <u64> compute units"
	if pidText, tail, ok := cutMid(rest, " consumed "); ok {
		tail, ok = cutSuffixOK(tail, " compute units")
		if !ok {
			return Line{}, &parseerr.BadLine{Index: index, Text: raw, Reason: "consumed line missing compute units suffix"}
		}
		consumedText, totalText, ok := cutMidStr(tail, " of ")
		if !ok {
			return Line{}, &parseerr.BadLine{Index: index, Text: raw, Reason: "consumed line missing \" of \" separator"}
		}
		consumed, err1 := strconv.ParseUint(consumedText, 10, 64)
		total, err2 := strconv.ParseUint(totalText, 10, 64)
		if err1 != nil || err2 != nil {
			return Line{}, &parseerr.BadLine{Index: index, Text: raw, Reason: "consumed units are not valid integers"}
		}
		pid, err := txtypes.ParseProgramID(pidText)
		if err != nil {
			return Line{}, &parseerr.WrongPubkeySize{Index: index, Field: pidText}
		}
		return Line{Kind: Consumed, ProgramID: pid, ConsumedUnits: consumed, ConsumedTotal: total, Raw: raw}, nil
	}

	return Line{}, &parseerr.BadLine{Index: index, Text: raw, Reason: "line did not match any known Program shape"}
}

func cut(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

func cutSuffixOK(s, suffix string) (string, bool) {
	if !strings.HasSuffix(s, suffix) {
		return "", false
	}
	return s[:len(s)-len(suffix)], true
}

func cutSuffix(s, suffix string) (string, bool) {
	return cutSuffixOK(s, suffix)
}

// splitFirstSpace splits on the first space, returning (before, after).
func splitFirstSpace(s string) (string, string, bool) {
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// cutMid splits s on the first occurrence of sep, returning (before sep, after sep).
func cutMid(s, sep string) (string, string, bool) {
	i := strings.Index(s, sep)
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+len(sep):], true
}

func cutMidStr(s, sep string) (string, string, bool) {
	return cutMid(s, sep)
}
