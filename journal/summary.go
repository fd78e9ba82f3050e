package journal

import (
	"bytes"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
)

// Summary aggregates a set of closed trades.
type Summary struct {
	Instrument string
	Start      time.Time
	End        time.Time

	Trades      int
	Wins        int
	Losses      int
	TakeProfits int
	StopLosses  int

	GrossProfit  float64
	GrossLoss    float64
	NetPL        float64
	WinRate      float64
	ProfitFactor float64

	StartBalance float64
	EndBalance   float64
	MaxDDPct     float64
}

// Summarize totals trades, which must be in exit order. Cash totals are
// summed in decimal so the net matches the ledger's cents.
func Summarize(trades []TradeRecord) Summary {
	var s Summary
	if len(trades) == 0 {
		return s
	}

	first, last := trades[0], trades[len(trades)-1]
	s.Instrument = first.Instrument
	s.Start = first.EntryTime
	s.End = last.ExitTime
	s.StartBalance = first.BalanceAfter - first.RealizedPL
	s.EndBalance = last.BalanceAfter

	var gp, gl, net decimal.Decimal
	peak := s.StartBalance
	for _, t := range trades {
		s.Trades++
		pl := decimal.NewFromFloat(t.RealizedPL)
		net = net.Add(pl)
		switch {
		case pl.IsPositive():
			s.Wins++
			gp = gp.Add(pl)
		case pl.IsNegative():
			s.Losses++
			gl = gl.Add(pl.Abs())
		}
		switch t.Reason {
		case ReasonTakeProfit:
			s.TakeProfits++
		case ReasonStopLoss:
			s.StopLosses++
		}

		if t.BalanceAfter > peak {
			peak = t.BalanceAfter
		}
		if peak > 0 {
			if dd := (peak - t.BalanceAfter) / peak * 100; dd > s.MaxDDPct {
				s.MaxDDPct = dd
			}
		}
	}

	s.GrossProfit = gp.InexactFloat64()
	s.GrossLoss = gl.InexactFloat64()
	s.NetPL = net.InexactFloat64()
	s.WinRate = float64(s.Wins) / float64(s.Trades)
	if gl.IsPositive() {
		s.ProfitFactor = gp.Div(gl).InexactFloat64()
	}
	return s
}

// ReturnPct is the net P&L relative to the starting balance.
func (s Summary) ReturnPct() float64 {
	if s.StartBalance == 0 {
		return 0
	}
	return s.NetPL / s.StartBalance * 100
}

var summaryOrgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
}

// FormatSummaryOrg renders s as an Org-mode block.
func FormatSummaryOrg(s Summary) (string, error) {
	t, err := template.New("summary").Funcs(summaryOrgFuncs).Parse(SummaryOrgTemplate)
	if err != nil {
		return "", err
	}

	buf := new(bytes.Buffer)
	if err := t.Execute(buf, s); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const SummaryOrgTemplate = `* JOURNAL: {{if .Instrument}}{{.Instrument}}{{else}}(no trades){{end}}
:PROPERTIES:
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_BAL:   {{printf "%.2f" .StartBalance}}
:END_BAL:     {{printf "%.2f" .EndBalance}}
:NET_PL:      {{printf "%.2f" .NetPL}}
:RETURN_PCT:  {{printf "%.2f" .ReturnPct}}
:MAX_DD_PCT:  {{printf "%.2f" .MaxDDPct}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{printf "%.2f" (mul100 .WinRate)}}
:PROFIT_FAC:  {{if ne .ProfitFactor 0.0}}{{printf "%.2f" .ProfitFactor}}{{else}}n/a{{end}}
:END:

** Exits
| Outcome     | Count |
|-------------+-------|
| Take profit | {{.TakeProfits}} |
| Stop loss   | {{.StopLosses}} |
| Total       | {{.Trades}} |

** Cash
- Gross profit: *{{printf "%.2f" .GrossProfit}}*
- Gross loss:   *{{printf "%.2f" .GrossLoss}}*
- Net P/L:      *{{printf "%.2f" .NetPL}}*
`
