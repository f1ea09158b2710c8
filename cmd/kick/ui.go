package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"kickoff/internal/game"
	"kickoff/internal/live"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	promoStyle  = cellStyle.Foreground(lipgloss.Color("10"))
	dropStyle   = cellStyle.Foreground(lipgloss.Color("9"))
)

// setupTerminal drops colors when stdout is not a terminal.
func setupTerminal() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptInt(label string, min, max int) (int, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.Atoi(text)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min || v > max {
			printWarn(fmt.Sprintf("Value must be between %d and %d", min, max))
			continue
		}
		return v, nil
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...)
}

func renderTeam(t *game.Team) {
	accent.Printf("\n== %s ==\n", t.Name)
	fmt.Printf("League:    %s (%d pts, %d-%d, %d played)\n",
		t.League.Tier, t.League.Points, t.League.GoalsFor, t.League.GoalsAgainst, t.League.MatchesPlayed)
	fmt.Printf("Power:     %d\n", t.TeamPower)
	fmt.Printf("Coins:     %s\n", comma(t.Coins))
	fmt.Printf("Banknotes: %s\n", comma(t.Banknotes))
	fmt.Printf("Coach:     %s (quality %d, contract until %s)\n",
		t.Coach.Name, t.Coach.Quality, t.Coach.Contract.ExpiresAt.Format(time.DateOnly))

	tbl := newTable("ID", "NAME", "POS", "AGE", "OVR", "CONTRACT", "STATUS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	now := time.Now()
	for _, p := range t.Roster {
		status := "fit"
		switch {
		case p.IsInjured:
			status = "injured"
		case p.Contract.Expired(now):
			status = "expired"
		}
		contract := p.Contract.ExpiresAt.Format(time.DateOnly)
		if p.Contract.IsBasePlayer {
			contract += " (base)"
		}
		tbl.Row(p.ID.String()[:8], truncate(p.Name, 22), string(p.Position),
			strconv.Itoa(p.Age), strconv.Itoa(p.Overall), contract, status)
	}
	fmt.Println(tbl)
	fmt.Printf("Fires this month: %d/%d\n\n", t.MonthlyFires.Count, game.MonthlyFireLimit)
}

func renderFacilities(rows []game.FacilityStatus) {
	accent.Println("\n== FACILITIES ==")
	tbl := newTable("FACILITY", "LEVEL", "PER HOUR", "READY", "UPGRADE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, f := range rows {
		upgrade := comma(f.UpgradeCost)
		if f.MaxLevel {
			upgrade = "max"
		}
		tbl.Row(string(f.Type), strconv.Itoa(f.Level), comma(f.ProductionRate), comma(f.Collectable), upgrade)
	}
	fmt.Println(tbl)
	fmt.Println()
}

func renderLeagueTable(tier string, rows []game.LeagueRow) {
	accent.Printf("\n== LEAGUE %s ==\n", strings.ToUpper(tier))
	if len(rows) == 0 {
		printInfo("No teams registered in this tier.")
		return
	}
	t, _ := game.ParseTier(tier)
	_, hasNext := t.Next()
	_, hasPrev := t.Prev()
	tbl := newTable("#", "TEAM", "PWR", "P", "GF", "GA", "PTS").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case hasNext && row < 2:
				return promoStyle
			case hasPrev && row >= len(rows)-2 && row >= 2:
				return dropStyle
			}
			return cellStyle
		})
	for _, r := range rows {
		tbl.Row(strconv.Itoa(r.Rank), truncate(r.TeamName, 24), strconv.Itoa(r.TeamPower),
			strconv.Itoa(r.MatchesPlayed), strconv.Itoa(r.GoalsFor), strconv.Itoa(r.GoalsAgainst), strconv.Itoa(r.Points))
	}
	fmt.Println(tbl)
	fmt.Println()
}

func renderMatch(m *game.Match) {
	accent.Printf("\n== %s %d - %d %s ==\n", m.HomeTeamName, m.Score.Home, m.Score.Away, m.AwayTeamName)
	fmt.Printf("%s, %s, minute %d/%d (%s)\n", m.Stadium, m.Tier, m.ClockMinute, game.MatchMinutes, m.Status())
	for _, ev := range m.Events {
		renderEvent(ev)
	}
	fmt.Println()
}

func renderEvent(ev game.MatchEvent) {
	line := fmt.Sprintf("%3d' %s", ev.Minute, ev.Description)
	switch {
	case ev.Type == game.EventGoal, ev.Type == game.EventPenalty && ev.Converted:
		success.Println(line)
	case ev.Type == game.EventRedCard, ev.Type == game.EventInjury:
		danger.Println(line)
	case ev.Type == game.EventYellowCard:
		warn.Println(line)
	default:
		printInfo(line)
	}
}

// feedPrinter prints only what changed since the previous message.
type feedPrinter struct {
	seen int
}

func (f *feedPrinter) print(msg live.Message) error {
	switch msg.Type {
	case live.MessageSnapshot:
		m, err := decodeInto[game.Match](msg.Payload)
		if err != nil {
			return err
		}
		renderMatch(&m)
		f.seen = len(m.Events)
	case live.MessageUpdate:
		u, err := decodeInto[game.MatchUpdate](msg.Payload)
		if err != nil {
			return err
		}
		for _, ev := range u.Events[min(f.seen, len(u.Events)):] {
			renderEvent(ev)
		}
		f.seen = len(u.Events)
		if u.IsFinished {
			accent.Printf("Full time: %d - %d\n", u.Score.Home, u.Score.Away)
		}
	}
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
