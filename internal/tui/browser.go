package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tinytelemetry/sadcompare/internal/model"
)

// View selects what the main panel shows for the selected dataset.
type View int

const (
	ViewWins View = iota
	ViewWeights
	ViewLikelihoods
	viewCount
)

var viewTitles = [viewCount]string{"Wins", "AICc weights", "Likelihoods"}

func (v View) String() string { return viewTitles[v] }

// Browser is a Bubble Tea model for exploring stored comparison results.
// The sidebar lists "All" followed by every stored dataset.
type Browser struct {
	store model.ResultQuerier
	keys  KeyMap
	help  help.Model
	spin  spinner.Model

	datasets []string
	cursor   int
	view     View

	// seq discards results of loads superseded by a newer selection.
	seq     int
	loading bool
	data    viewData
	err     error

	width  int
	height int
}

type viewData struct {
	counts map[model.Model]int64
	values map[model.Model][]float64
}

type datasetsMsg struct {
	datasets []string
	err      error
}

type viewDataMsg struct {
	seq  int
	data viewData
	err  error
}

// NewBrowser creates a browser over the given store.
func NewBrowser(store model.ResultQuerier) *Browser {
	return &Browser{
		store: store,
		keys:  DefaultKeyMap(),
		help:  help.New(),
		spin:  newSpinner(),
	}
}

// Run starts the browser in the alternate screen and blocks until it quits.
func Run(store model.ResultQuerier) error {
	_, err := tea.NewProgram(NewBrowser(store), tea.WithAltScreen()).Run()
	return err
}

func (b *Browser) Init() tea.Cmd {
	return b.loadDatasets()
}

// Dataset returns the selected dataset code, "" for all datasets.
func (b *Browser) Dataset() string {
	if b.cursor == 0 || b.cursor > len(b.datasets) {
		return ""
	}
	return b.datasets[b.cursor-1]
}

func (b *Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.height = msg.Height
		b.help.Width = msg.Width
		return b, nil

	case datasetsMsg:
		b.err = msg.err
		if msg.err != nil {
			return b, nil
		}
		b.datasets = msg.datasets
		if b.cursor > len(b.datasets) {
			b.cursor = len(b.datasets)
		}
		return b, b.reload()

	case viewDataMsg:
		if msg.seq != b.seq {
			return b, nil
		}
		b.loading = false
		b.data = msg.data
		b.err = msg.err
		return b, nil

	case spinner.TickMsg:
		if !b.loading {
			return b, nil
		}
		var cmd tea.Cmd
		b.spin, cmd = b.spin.Update(msg)
		return b, cmd

	case tea.KeyMsg:
		return b.handleKeyPress(msg)
	}
	return b, nil
}

func (b *Browser) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := b.keys
	switch {
	case key.Matches(msg, k.Quit):
		return b, tea.Quit
	case key.Matches(msg, k.Help):
		b.help.ShowAll = !b.help.ShowAll
	case key.Matches(msg, k.Up):
		if b.cursor > 0 {
			b.cursor--
			return b, b.reload()
		}
	case key.Matches(msg, k.Down):
		if b.cursor < len(b.datasets) {
			b.cursor++
			return b, b.reload()
		}
	case key.Matches(msg, k.NextView):
		b.view = (b.view + 1) % viewCount
		return b, b.reload()
	case key.Matches(msg, k.PrevView):
		b.view = (b.view + viewCount - 1) % viewCount
		return b, b.reload()
	case key.Matches(msg, k.Refresh):
		return b, b.loadDatasets()
	}
	return b, nil
}

func (b *Browser) loadDatasets() tea.Cmd {
	store := b.store
	return func() tea.Msg {
		datasets, err := store.ListDatasets()
		return datasetsMsg{datasets: datasets, err: err}
	}
}

// reload starts an async fetch for the current dataset and view.
func (b *Browser) reload() tea.Cmd {
	b.seq++
	b.loading = true
	seq, dataset, view, store := b.seq, b.Dataset(), b.view, b.store

	fetch := func() tea.Msg {
		data, err := fetchView(store, dataset, view)
		return viewDataMsg{seq: seq, data: data, err: err}
	}
	return tea.Batch(fetch, b.spin.Tick)
}

func fetchView(store model.ResultQuerier, dataset string, view View) (viewData, error) {
	if view == ViewWins {
		counts, err := store.CountWinsByModel(dataset)
		return viewData{counts: counts}, err
	}

	q := model.ValueQuery{Dataset: dataset, ValueType: model.AICcWeight, ExcludeAbsent: true}
	if view == ViewLikelihoods {
		q = model.ValueQuery{Dataset: dataset, ValueType: model.Likelihood, PositiveOnly: true}
	}
	values := make(map[model.Model][]float64, model.Count)
	for _, m := range model.Models() {
		q.Model = m
		scores, err := store.Values(q)
		if err != nil {
			return viewData{}, err
		}
		vals := make([]float64, 0, len(scores))
		for _, s := range scores {
			if s.Valid {
				vals = append(vals, s.Value)
			}
		}
		values[m] = vals
	}
	return viewData{values: values}, nil
}
