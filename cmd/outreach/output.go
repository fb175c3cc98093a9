package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"outreach_backend/internal/outreach"

	"github.com/jedib0t/go-pretty/v6/table"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	if title != "" {
		tw.SetTitle(title)
	}
	return tw
}

func printCycleReport(r *outreach.CycleReport) {
	tw := newTable(fmt.Sprintf("Cycle %s (%.1fs)", r.ID, r.Summary.DurationSeconds))
	tw.AppendHeader(table.Row{"Stage", "Processed"})
	tw.AppendRow(table.Row{"new leads", r.Summary.TotalNewLeadsProcessed})
	tw.AppendRow(table.Row{"replies", r.Summary.TotalRepliesProcessed})
	tw.AppendRow(table.Row{"bookings", r.Summary.TotalBookingsDetected})
	tw.AppendRow(table.Row{"follow-ups sent", r.Summary.TotalFollowUpsSent})
	tw.AppendFooter(table.Row{"errors", r.Summary.TotalErrors})
	tw.Render()

	all := make([]outreach.Outcome, 0, len(r.NewLeads)+len(r.Replies)+len(r.Bookings)+len(r.FollowUps))
	all = append(all, r.NewLeads...)
	all = append(all, r.Replies...)
	all = append(all, r.Bookings...)
	all = append(all, r.FollowUps...)
	if len(all) > 0 {
		printOutcomes("Outcomes", all)
	}

	if len(r.Errors) > 0 {
		et := newTable("Stage errors")
		et.AppendHeader(table.Row{"Stage", "Error"})
		for _, e := range r.Errors {
			et.AppendRow(table.Row{e.Stage, e.Error})
		}
		et.Render()
	}
}

func printOutcomes(title string, outcomes []outreach.Outcome) {
	tw := newTable(title)
	tw.AppendHeader(table.Row{"Lead", "Action", "OK", "Detail"})
	for _, o := range outcomes {
		detail := o.Detail
		if o.Error != "" {
			detail = o.Error
		}
		tw.AppendRow(table.Row{o.Email, o.Action, o.Success, detail})
	}
	tw.Render()
}

func printPipelineSummary(s *outreach.PipelineSummary) {
	tw := newTable(fmt.Sprintf("Pipeline (%d leads)", s.Total))
	tw.AppendHeader(table.Row{"Status", "Leads"})
	for _, status := range sortedKeys(s.ByStatus) {
		tw.AppendRow(table.Row{status, s.ByStatus[status]})
	}
	tw.Render()

	pt := newTable("By priority")
	pt.AppendHeader(table.Row{"Priority", "Leads"})
	for _, p := range sortedKeys(s.ByPriority) {
		pt.AppendRow(table.Row{p, s.ByPriority[p]})
	}
	pt.Render()

	if s.LastCycleID != "" {
		at := ""
		if s.LastCycleAt != nil {
			at = s.LastCycleAt.Format("2006-01-02 15:04:05 MST")
		}
		fmt.Printf("last cycle: %s %s\n", s.LastCycleID, at)
	}
	if len(s.FollowUpQueue) > 0 {
		printSchedule(s.FollowUpQueue)
	}
}

func printSchedule(entries []outreach.ScheduleEntry) {
	tw := newTable("Follow-up queue")
	tw.AppendHeader(table.Row{"Lead", "Status", "Next", "Since (h)", "Due in (h)"})
	for _, e := range entries {
		tw.AppendRow(table.Row{e.Email, e.Status, e.NextStage, fmt.Sprintf("%.1f", e.HoursSince), fmt.Sprintf("%.1f", e.HoursUntil)})
	}
	tw.Render()
}

func printLeadStatus(s *outreach.LeadStatus) {
	l := s.Lead
	tw := newTable(l.Email)
	tw.AppendRow(table.Row{"Name", l.Name})
	tw.AppendRow(table.Row{"Firm", l.FirmName})
	tw.AppendRow(table.Row{"Status", l.Status})
	tw.AppendRow(table.Row{"Priority", l.PriorityOrUnset()})
	tw.AppendRow(table.Row{"Follow-up stage", l.FollowUpStage})
	tw.AppendRow(table.Row{"Messages", s.MessageCount})
	tw.AppendRow(table.Row{"Valid triggers", fmt.Sprint(s.ValidTriggers)})
	tw.Render()

	if len(s.RecentActions) > 0 {
		at := newTable("Recent actions")
		at.AppendHeader(table.Row{"When", "Action", "OK"})
		for _, r := range s.RecentActions {
			at.AppendRow(table.Row{r.Timestamp.Format("2006-01-02 15:04"), r.ActionType, r.Success})
		}
		at.Render()
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
