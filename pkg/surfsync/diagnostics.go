package surfsync

import (
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
)

// SurfaceTable renders every known surface and link set for the log
func (e *Engine) SurfaceTable() string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Surfaces")
	t.AppendHeader(table.Row{"Address", "Bank", "Bank size", "Strips", "Strip types", "Feedback", "Gain mode", "Link", "Mode"})

	for _, s := range e.registry.All() {
		link := "-"
		if s.linkSet > 0 {
			link = strconv.Itoa(s.linkSet) + ":" + strconv.Itoa(s.linkID)
		}

		t.AppendRow(table.Row{
			s.Address,
			s.bank,
			s.cfg.BankSize,
			len(e.stripsView(s)),
			s.cfg.StripTypes.Bits(),
			s.cfg.Feedback.Bits(),
			int(s.cfg.GainMode),
			link,
			surfaceMode(s),
		})
	}

	out := t.Render()
	if len(e.links) == 0 {
		return out
	}

	ids := make([]int, 0, len(e.links))
	for id := range e.links {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	lt := table.NewWriter()
	lt.SetStyle(table.StyleRounded)
	lt.SetTitle("Link sets")
	lt.AppendHeader(table.Row{"Set", "Members", "Bank", "Bank size", "Auto", "Not ready"})

	for _, id := range ids {
		set := e.links[id]
		members := 0
		for _, m := range set.Members[1:] {
			if m != "" {
				members++
			}
		}
		lt.AppendRow(table.Row{id, members, set.Bank, set.BankSize, set.AutoBank, set.NotReady})
	}

	return out + "\n" + lt.Render()
}

func surfaceMode(s *Surface) string {
	switch {
	case s.cue:
		return "cue " + strconv.Itoa(s.aux)
	case s.tempMode != TempOff:
		return "temp " + s.tempMode.String()
	case s.customMode:
		return "custom"
	}

	return "default"
}

func (e *Engine) logSurfaceList() {
	e.logger.Infow("Surface list", "surfaces", e.registry.Len(), "linkSets", len(e.links))
	e.logger.Info("\n" + e.SurfaceTable())
}
