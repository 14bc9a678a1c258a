// Minimed: Medtronic MiniMed pump driver over a CC1111 USB radio stick
// Copyright (C) 2026  David Leclerc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"

	"minimed/internal/config"
	"minimed/internal/pump"
	"minimed/internal/stick"
)

// View states
const (
	menuView = iota
	runningView
	resultView
)

// Styles
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#34D399")).
			Padding(0, 2).
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#4B5563")).
			Padding(0, 2)

	resultStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#9CA3AF")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)
)

// menuItem is one runnable pump or stick command.
type menuItem struct {
	name string
	desc string
	run  func() (any, error)
}

func (i menuItem) Title() string       { return i.name }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.name }

type resultMsg struct {
	name  string
	value any
	err   error
}

type model struct {
	list    list.Model
	spinner spinner.Model
	view    int
	result  resultMsg
	copied  bool
}

func newModel(items []list.Item) model {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "MiniMed pump commands"
	l.SetShowHelp(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{list: l, spinner: sp}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.view == menuView {
				return m, tea.Quit
			}
			m.view = menuView
			return m, nil

		case "esc":
			m.view = menuView
			return m, nil

		case "c":
			if m.view == resultView && m.result.err == nil {
				clipboard.WriteAll(renderValue(m.result.value))
				m.copied = true
				return m, nil
			}

		case "enter":
			if m.view == menuView {
				item, ok := m.list.SelectedItem().(menuItem)
				if !ok {
					return m, nil
				}
				m.view = runningView
				m.copied = false
				return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
					value, err := item.run()
					return resultMsg{name: item.name, value: value, err: err}
				})
			}
		}

	case resultMsg:
		m.result = msg
		m.view = resultView
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	header := headerStyle.Render("minimed pumpctl")

	switch m.view {
	case runningView:
		return fmt.Sprintf("%s\n\n %s waiting for the pump...\n", header, m.spinner.View())

	case resultView:
		body := renderValue(m.result.value)
		if m.result.err != nil {
			body = errorStyle.Render(m.result.err.Error())
		}
		footer := footerStyle.Render("esc: back · c: copy · q: menu")
		if m.copied {
			footer = footerStyle.Render("copied to clipboard")
		}
		return fmt.Sprintf("%s\n\n%s\n%s\n%s\n", header,
			m.result.name, resultStyle.Render(body), footer)
	}

	footer := footerStyle.Render("enter: run · q: quit")
	return fmt.Sprintf("%s\n%s\n%s\n", header, m.list.View(), footer)
}

// renderValue pretty-prints a decoded response: plain scalars as-is,
// structures through spew.
func renderValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "OK"
	case string:
		return v
	case int, float64:
		return fmt.Sprint(v)
	case []byte:
		return fmt.Sprintf("% X", v)
	}
	return strings.TrimSpace(spew.Sdump(v))
}

func menuItems(s *stick.Stick, p *pump.Pump, band stick.Band) []list.Item {
	ack := func(err error) (any, error) { return nil, err }

	return []list.Item{
		menuItem{"Stick name", "read the stick firmware name", func() (any, error) { return s.ReadName() }},
		menuItem{"Stick author", "read the stick firmware author", func() (any, error) { return s.ReadAuthor() }},
		menuItem{"Flash LED", "blink the stick LED", func() (any, error) { return ack(s.FlashLED()) }},
		menuItem{"Scan frequencies", "sweep the band for the best frequency", func() (any, error) {
			return p.Scan(pump.ScanOptions{F1: band.Min, F2: band.Max})
		}},
		menuItem{"Power pump", "open a 10 minute RF session", func() (any, error) { return ack(p.Power(10)) }},
		menuItem{"Model", "read the pump model", func() (any, error) { return p.Model() }},
		menuItem{"Firmware", "read the pump firmware version", func() (any, error) { return p.Firmware() }},
		menuItem{"Time", "read the pump clock", func() (any, error) {
			t, err := p.Time()
			if err != nil {
				return nil, err
			}
			return t.Format("2006-01-02 15:04:05"), nil
		}},
		menuItem{"Battery", "read the battery voltage", func() (any, error) { return p.Battery() }},
		menuItem{"Reservoir", "read the remaining insulin", func() (any, error) { return p.Reservoir() }},
		menuItem{"Status", "read the pump run state", func() (any, error) { return p.Status() }},
		menuItem{"Settings", "read the delivery limits", func() (any, error) { return p.Settings() }},
		menuItem{"BG units", "read the blood glucose units", func() (any, error) { return p.BGUnits() }},
		menuItem{"Carb units", "read the carbohydrate units", func() (any, error) { return p.CarbUnits() }},
		menuItem{"BG targets", "read the target schedule", func() (any, error) { return p.BGTargets() }},
		menuItem{"ISF", "read the insulin sensitivity schedule", func() (any, error) { return p.ISF() }},
		menuItem{"CSF", "read the carb ratio schedule", func() (any, error) { return p.CSF() }},
		menuItem{"Basal profile", "read the standard basal schedule", func() (any, error) {
			return p.BasalProfile(pump.BasalStandard)
		}},
		menuItem{"Daily totals", "read the raw daily totals record", func() (any, error) { return p.DailyTotals() }},
		menuItem{"History page 0", "read the newest history page", func() (any, error) { return p.HistoryPage(0) }},
		menuItem{"Suspend", "halt all delivery", func() (any, error) { return ack(p.Suspend()) }},
		menuItem{"Resume", "restart delivery", func() (any, error) { return ack(p.Resume()) }},
	}
}

func main() {
	tune := flag.Float64("tune", 0, "tune to this frequency (MHz) before starting")
	flag.Parse()

	cfg := config.MustLoad()
	serial, err := cfg.SerialBytes()
	if err != nil {
		log.Fatal(err)
	}
	band, err := stick.BandByName(cfg.Region)
	if err != nil {
		log.Fatal(err)
	}

	s, err := stick.Open()
	if err != nil {
		log.Fatalf("open stick: %v", err)
	}
	defer s.Close()

	freq := *tune
	if freq == 0 {
		freq = cfg.Frequency
	}
	if freq == 0 {
		freq = band.Default
	}
	if err := s.Tune(freq); err != nil {
		log.Fatalf("tune: %v", err)
	}

	p := pump.New(s, serial)

	if _, err := tea.NewProgram(newModel(menuItems(s, p, band)), tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "pumpctl: %v\n", err)
		os.Exit(1)
	}
}
