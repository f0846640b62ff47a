// Package reconstruct folds an ordered log line stream into a per-invocation
// map using an explicit invocation stack (spec §4.2). It never recurses and
// never relies on unwinding: every failure is a typed return value.
package reconstruct

import (
	"github.com/oriys/txgraph/internal/logline"
	"github.com/oriys/txgraph/internal/parseerr"
	"github.com/oriys/txgraph/internal/txtypes"
)

// Reconstruct folds lines into a map keyed by ProgramContext. A "Log
// truncated" line ends parsing cleanly and returns the partial map built so
// far (I5); any other invariant violation fails the whole reconstruction
// (the all-or-nothing policy of spec §4.2).
func Reconstruct(lines []logline.Line) (map[txtypes.ProgramContext][]txtypes.ProgramLog, error) {
	out := make(map[txtypes.ProgramContext][]txtypes.ProgramLog)
	stack := make([]txtypes.ProgramContext, 0, 8)
	nextCallIndex := make(map[txtypes.ProgramID]txtypes.CallIndex)

	top := func() (txtypes.ProgramContext, bool) {
		if len(stack) == 0 {
			return txtypes.ProgramContext{}, false
		}
		return stack[len(stack)-1], true
	}

	appendEvent := func(index int, ev txtypes.ProgramLog) error {
		ctx, ok := top()
		if !ok {
			return &parseerr.EmptyInvokeLogContext{Index: index}
		}
		out[ctx] = append(out[ctx], ev)
		return nil
	}

	for index, line := range lines {
		switch line.Kind {
		case logline.Truncated:
			return out, nil

		case logline.Invoke:
			callIdx := nextCallIndex[line.ProgramID]
			nextCallIndex[line.ProgramID] = callIdx + 1
			child := txtypes.ProgramContext{
				ProgramID:   line.ProgramID,
				CallIndex:   callIdx,
				InvokeLevel: txtypes.InvokeLevel(line.InvokeLevel),
			}

			if line.InvokeLevel != len(stack)+1 {
				return nil, &parseerr.InvokeDepthMismatch{
					Index:         index,
					ExpectedDepth: len(stack) + 1,
					ReportedDepth: line.InvokeLevel,
				}
			}

			// I7: record the Invoke event on the *parent's* list before the
			// child's own (possibly empty) entry is created.
			if parent, ok := top(); ok {
				out[parent] = append(out[parent], txtypes.InvokeEvent(child))
			}
			// I8: every reached context is a key even if it produces no events.
			if _, exists := out[child]; !exists {
				out[child] = nil
			}
			stack = append(stack, child)

		case logline.Success:
			ctx, ok := top()
			if !ok || ctx.ProgramID != line.ProgramID {
				var got txtypes.ProgramID
				if ok {
					got = ctx.ProgramID
				}
				return nil, &parseerr.UnexpectedProgramResult{Index: index, Expected: got, Got: line.ProgramID}
			}
			stack = stack[:len(stack)-1]

		case logline.Failed:
			return nil, &parseerr.ErrorLog{ProgramID: line.ProgramID, Err: line.Text, Index: index}

		case logline.FailedComplete:
			return nil, &parseerr.ErrorCompleteLog{Err: line.Text, Index: index}

		case logline.Consumed:
			ctx, ok := top()
			if !ok || ctx.ProgramID != line.ProgramID {
				var got txtypes.ProgramID
				if ok {
					got = ctx.ProgramID
				}
				return nil, &parseerr.MissplacedConsumed{Index: index, Expected: got, Got: line.ProgramID}
			}
			if err := appendEvent(index, txtypes.ConsumedEvent(line.ConsumedUnits, line.ConsumedTotal)); err != nil {
				return nil, err
			}

		case logline.LogMsg:
			if err := appendEvent(index, txtypes.LogEvent(line.Text)); err != nil {
				return nil, err
			}

		case logline.DataMsg:
			if err := appendEvent(index, txtypes.DataEvent(line.Text)); err != nil {
				return nil, err
			}

		case logline.ReturnMsg:
			data, err := decodeReturnData(line.Text)
			if err != nil {
				return nil, err
			}
			if err := appendEvent(index, txtypes.ReturnEvent(line.ProgramID, data)); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}
