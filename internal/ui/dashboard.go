// Package ui is the terminal dashboard.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/senpa-rd/casewatch/internal/analytics"
	"github.com/senpa-rd/casewatch/internal/casestore"
	"github.com/senpa-rd/casewatch/internal/filter"
	"github.com/senpa-rd/casewatch/internal/model"
	"github.com/senpa-rd/casewatch/internal/refresh"
)

// Refresher forces a reload from the row source.
type Refresher interface {
	Force(ctx context.Context) (refresh.Result, error)
}

// Options wires a Dashboard. Cases is required.
type Options struct {
	Cases     *casestore.Service
	Refresher Refresher
	Filters   *filter.Engine
	Theme     string
	Logger    *zap.Logger
	// Redraw is how often the dashboard re-reads the store. Defaults to 2s.
	Redraw time.Duration
}

const (
	pageMain   = "main"
	pageDetail = "detail"
	pageHelp   = "help"
)

var caseColumns = []string{"Caso", "Fecha", "Provincia", "Región", "Actividad", "Área temática", "Det.", "Veh."}

// Dashboard is the tview application showing metrics, cases and regions.
type Dashboard struct {
	app       *tview.Application
	cases     *casestore.Service
	refresher Refresher
	filters   *filter.Engine
	logger    *zap.Logger
	redraw    time.Duration

	pages     *tview.Pages
	header    *tview.TextView
	metrics   *tview.TextView
	search    *tview.InputField
	caseTable *tview.Table
	regions   *tview.Table
	statusBar *tview.TextView

	theme     Theme
	themeName string

	searchText string
	shown      []*model.Case
	lastResult refresh.Result

	running    atomic.Bool
	refreshing atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewDashboard builds the widgets. Nothing is drawn until Run.
func NewDashboard(opts Options) *Dashboard {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Filters == nil {
		opts.Filters = filter.New(nil)
	}
	if opts.Redraw <= 0 {
		opts.Redraw = 2 * time.Second
	}
	name := opts.Theme
	if name == "" && !detectTrueColor() {
		name = "high-contrast"
	}

	d := &Dashboard{
		app:       tview.NewApplication(),
		cases:     opts.Cases,
		refresher: opts.Refresher,
		filters:   opts.Filters,
		logger:    opts.Logger.Named("ui"),
		redraw:    opts.Redraw,
		ctx:       context.Background(),
		cancel:    func() {},
	}
	d.theme, d.themeName = themeByName(name)

	d.setupLayout()
	d.app.SetInputCapture(d.handleKey)
	d.applyTheme()
	d.reload()
	return d
}

func (d *Dashboard) setupLayout() {
	d.header = tview.NewTextView().SetDynamicColors(true)

	d.metrics = tview.NewTextView().SetDynamicColors(true)
	d.metrics.SetBorder(true).SetTitle(" Resumen ").SetTitleAlign(tview.AlignLeft)

	d.search = tview.NewInputField().SetLabel("Buscar: ")
	d.search.SetBorder(true)
	d.search.SetChangedFunc(func(text string) {
		d.searchText = text
		d.reload()
	})
	d.search.SetDoneFunc(func(tcell.Key) {
		d.app.SetFocus(d.caseTable)
	})

	d.caseTable = tview.NewTable().SetSelectable(true, false).SetFixed(1, 0)
	d.caseTable.SetBorder(true).SetTitle(" Casos ").SetTitleAlign(tview.AlignLeft)
	d.caseTable.SetSelectedFunc(func(row, _ int) {
		if c := d.caseAt(row); c != nil {
			d.showDetail(c)
		}
	})

	d.regions = tview.NewTable().SetFixed(1, 0)
	d.regions.SetBorder(true).SetTitle(" Regiones ").SetTitleAlign(tview.AlignLeft)

	d.statusBar = tview.NewTextView().SetDynamicColors(true)

	body := tview.NewFlex().
		AddItem(d.caseTable, 0, 3, true).
		AddItem(d.regions, 0, 1, false)

	main := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.header, 1, 0, false).
		AddItem(d.metrics, 5, 0, false).
		AddItem(d.search, 3, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(d.statusBar, 1, 0, false)

	d.pages = tview.NewPages().AddPage(pageMain, main, true, true)
	d.app.SetRoot(d.pages, true).SetFocus(d.caseTable)
}

// Run draws the dashboard and blocks until the user quits or ctx is done.
func (d *Dashboard) Run(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)
	defer d.cancel()

	go func() {
		<-d.ctx.Done()
		d.app.Stop()
	}()
	go d.heartbeat()

	d.setStatus("[%s]Listo[-]", d.theme.TagAccent)
	d.running.Store(true)
	err := d.app.Run()
	d.running.Store(false)
	if err != nil {
		return fmt.Errorf("failed to run dashboard: %w", err)
	}
	return nil
}

// Stop ends Run.
func (d *Dashboard) Stop() {
	d.cancel()
	d.app.Stop()
}

// heartbeat re-reads the store so writes from the API and the auto-refresher show up.
func (d *Dashboard) heartbeat() {
	ticker := time.NewTicker(d.redraw)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.queue(d.reload)
		}
	}
}

// queue runs f on the UI goroutine, or inline when the app is not running.
func (d *Dashboard) queue(f func()) {
	if d.running.Load() {
		d.app.QueueUpdateDraw(f)
		return
	}
	f()
}

func (d *Dashboard) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if d.isDialogActive() {
		if event.Key() == tcell.KeyEsc {
			d.closeDialog()
			return nil
		}
		return event
	}
	if d.app.GetFocus() == d.search {
		if event.Key() == tcell.KeyEsc {
			d.app.SetFocus(d.caseTable)
			return nil
		}
		return event
	}

	switch event.Key() {
	case tcell.KeyCtrlC:
		d.Stop()
		return nil
	case tcell.KeyTab:
		d.cycleFocus()
		return nil
	case tcell.KeyEsc:
		d.setStatus("[%s]Listo[-]", d.theme.TagAccent)
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			d.Stop()
			return nil
		case 'r', 'R':
			d.triggerRefresh()
			return nil
		case '/':
			d.app.SetFocus(d.search)
			return nil
		case 't':
			d.theme, d.themeName = themeByName(nextTheme(d.themeName))
			d.applyTheme()
			d.reload()
			d.setStatus("[%s]Tema: %s[-]", d.theme.TagAccent, d.themeName)
			return nil
		case '?':
			d.showHelp()
			return nil
		}
	}
	return event
}

func (d *Dashboard) isDialogActive() bool {
	name, _ := d.pages.GetFrontPage()
	return name == pageDetail || name == pageHelp
}

func (d *Dashboard) closeDialog() {
	d.pages.RemovePage(pageDetail)
	d.pages.RemovePage(pageHelp)
	d.app.SetFocus(d.caseTable)
}

func (d *Dashboard) cycleFocus() {
	switch d.app.GetFocus() {
	case d.caseTable:
		d.app.SetFocus(d.regions)
	case d.regions:
		d.app.SetFocus(d.search)
	default:
		d.app.SetFocus(d.caseTable)
	}
	d.highlightFocus()
}

func (d *Dashboard) highlightFocus() {
	focused := d.app.GetFocus()
	for _, box := range []*tview.Box{d.caseTable.Box, d.regions.Box, d.search.Box, d.metrics.Box} {
		box.SetBorderColor(d.theme.Border)
	}
	switch focused {
	case d.caseTable:
		d.caseTable.SetBorderColor(d.theme.FocusBorder)
	case d.regions:
		d.regions.SetBorderColor(d.theme.FocusBorder)
	case d.search:
		d.search.SetBorderColor(d.theme.FocusBorder)
	}
}

// triggerRefresh forces a reload without blocking the event loop.
func (d *Dashboard) triggerRefresh() {
	if d.refresher == nil {
		d.setStatus("[%s]Sin fuente de datos configurada[-]", d.theme.TagWarning)
		return
	}
	if !d.refreshing.CompareAndSwap(false, true) {
		return
	}
	d.setStatus("[%s]Actualizando...[-]", d.theme.TagAccent)
	go func() {
		defer d.refreshing.Store(false)
		res, err := d.refresher.Force(d.ctx)
		d.queue(func() {
			if err != nil {
				d.logger.Warn("refresh failed", zap.Error(err))
				d.setStatus("[%s]Error al actualizar: %v[-]", d.theme.TagError, err)
				return
			}
			d.lastResult = res
			d.reload()
			d.setStatus("[%s]%d casos cargados en %s[-]", d.theme.TagSuccess, res.Cases, res.Duration.Round(time.Millisecond))
		})
	}()
}

// reload re-reads the store, applies the search text and redraws every panel.
// It must run on the UI goroutine once the app is running.
func (d *Dashboard) reload() {
	if d.cases == nil {
		return
	}
	d.shown = d.filters.Apply(d.cases.List(), model.FilterSpec{SearchText: d.searchText})

	d.header.SetText(d.headerText())
	d.metrics.SetText(metricsText(analytics.Summarize(d.shown), d.theme))
	d.fillCases()
	d.fillRegions(analytics.ByRegion(d.shown))
}

func (d *Dashboard) headerText() string {
	last := "nunca"
	if !d.lastResult.At.IsZero() {
		last = d.lastResult.At.Format("15:04:05")
	}
	return fmt.Sprintf("[%s::b]casewatch[-::-] [%s]| %d casos | última actualización %s | tema %s[-]",
		d.theme.TagAccent, d.theme.TagMuted, d.cases.Store().Len(), last, d.themeName)
}

func metricsText(m analytics.Metrics, th Theme) string {
	cell := func(label string, v int) string {
		return fmt.Sprintf("[%s]%s:[-] [%s::b]%d[-::-]", th.TagMuted, label, th.TagTextPrimary, v)
	}
	lines := [][]string{
		{cell("Casos", m.TotalCases), cell("Operativos", m.Operations), cell("Patrullas", m.Patrols), cell("Regiones", m.Regions)},
		{cell("Detenidos", m.Detainees), cell("Vehículos", m.Vehicles), cell("Incautaciones", m.Seizures)},
		{cell("Áreas intervenidas", m.IntervenedAreas), cell("Notificados", m.Notified), cell("Procuraduría", m.ProsecutorReferrals)},
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.Join(l, "   ")
	}
	return strings.Join(out, "\n")
}

func (d *Dashboard) headerCell(text string) *tview.TableCell {
	return tview.NewTableCell(text).
		SetTextColor(d.theme.TableHeader).
		SetBackgroundColor(d.theme.TableHeaderBg).
		SetAttributes(tcell.AttrBold).
		SetSelectable(false)
}

func (d *Dashboard) rowCell(text string, row int) *tview.TableCell {
	bg := d.theme.TableZebra1
	if row%2 == 0 {
		bg = d.theme.TableZebra2
	}
	return tview.NewTableCell(text).SetTextColor(d.theme.TableRow).SetBackgroundColor(bg)
}

func (d *Dashboard) fillCases() {
	selected, _ := d.caseTable.GetSelection()
	d.caseTable.Clear()
	for col, h := range caseColumns {
		d.caseTable.SetCell(0, col, d.headerCell(h))
	}
	if len(d.shown) == 0 {
		d.caseTable.SetCell(1, 0, tview.NewTableCell("Sin casos").SetTextColor(d.theme.TextMuted).SetSelectable(false))
		return
	}
	for i, c := range d.shown {
		row := i + 1
		values := []string{
			c.CaseNumber, c.Date, c.Province, c.Region, c.ActivityType, c.TopicArea,
			strconv.Itoa(c.DetaineeCount), strconv.Itoa(c.VehicleCount),
		}
		for col, v := range values {
			cell := d.rowCell(v, row)
			if col == 0 {
				cell.SetReference(c.CaseNumber)
			}
			d.caseTable.SetCell(row, col, cell)
		}
	}
	if selected < 1 {
		selected = 1
	}
	if selected > len(d.shown) {
		selected = len(d.shown)
	}
	d.caseTable.Select(selected, 0)
}

func (d *Dashboard) fillRegions(rows []analytics.AreaBreakdown) {
	d.regions.Clear()
	for col, h := range []string{"Región", "Op.", "Pat.", "Total"} {
		d.regions.SetCell(0, col, d.headerCell(h))
	}
	for i, r := range rows {
		row := i + 1
		d.regions.SetCell(row, 0, d.rowCell(r.Name, row))
		d.regions.SetCell(row, 1, d.rowCell(strconv.Itoa(r.Operations), row).SetAlign(tview.AlignRight))
		d.regions.SetCell(row, 2, d.rowCell(strconv.Itoa(r.Patrols), row).SetAlign(tview.AlignRight))
		d.regions.SetCell(row, 3, d.rowCell(strconv.Itoa(r.Total), row).SetAlign(tview.AlignRight))
	}
}

// caseAt returns the case shown on a table row.
func (d *Dashboard) caseAt(row int) *model.Case {
	if row < 1 || row > len(d.shown) {
		return nil
	}
	return d.shown[row-1]
}

func (d *Dashboard) showDetail(c *model.Case) {
	view := tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetText(caseDetail(c, d.theme))
	view.SetBorder(true).SetTitle(fmt.Sprintf(" Caso %s (Esc para cerrar) ", c.CaseNumber))
	d.pages.AddPage(pageDetail, centered(view, 80, 24), true, true)
	d.app.SetFocus(view)
}

func caseDetail(c *model.Case, th Theme) string {
	var b strings.Builder
	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "[%s]%-20s[-] %s\n", th.TagMuted, label, tview.Escape(value))
	}
	field("Fecha", strings.TrimSpace(c.Date+" "+c.Time))
	field("Provincia", c.Province)
	field("Localidad", c.Locality)
	field("Región", c.Region)
	field("Tipo de actividad", c.ActivityType)
	field("Área temática", c.TopicArea)
	field("Detenidos", strconv.Itoa(c.DetaineeCount))
	field("Vehículos", strconv.Itoa(c.VehicleCount))
	field("Notificados", strconv.Itoa(c.NotifiedFlag))
	procuraduria := "No"
	if c.ProsecutorReferral {
		procuraduria = "Sí"
	}
	field("Procuraduría", procuraduria)
	if c.Coordinates != nil {
		field("Coordenadas", fmt.Sprintf("%.6f, %.6f", c.Coordinates.Lat, c.Coordinates.Lng))
	}
	field("Resultado", c.ResultNotes)

	if len(c.DetaineeDetails) > 0 {
		fmt.Fprintf(&b, "\n[%s::b]Detenidos[-::-]\n", th.TagAccent)
		for _, p := range c.DetaineeDetails {
			fmt.Fprintf(&b, "  %s (%s)\n", tview.Escape(p.Name), tview.Escape(p.Nationality))
		}
	}
	if len(c.VehicleDetails) > 0 {
		fmt.Fprintf(&b, "\n[%s::b]Vehículos[-::-]\n", th.TagAccent)
		for _, v := range c.VehicleDetails {
			fmt.Fprintf(&b, "  %s %s\n", tview.Escape(v.Type), tview.Escape(v.Plate))
		}
	}
	if len(c.Seizures) > 0 {
		fmt.Fprintf(&b, "\n[%s::b]Incautaciones[-::-]\n", th.TagAccent)
		for _, s := range c.Seizures {
			fmt.Fprintf(&b, "  %s\n", tview.Escape(s))
		}
	}
	return b.String()
}

func (d *Dashboard) showHelp() {
	text := strings.Join([]string{
		"r        actualizar desde la fuente",
		"/        buscar (Esc vuelve a la tabla)",
		"Enter    detalle del caso",
		"Tab      cambiar panel",
		"t        cambiar tema",
		"q        salir",
	}, "\n")
	view := tview.NewTextView().SetText(text)
	view.SetBorder(true).SetTitle(" Ayuda ")
	d.pages.AddPage(pageHelp, centered(view, 50, 10), true, true)
	d.app.SetFocus(view)
}

func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

func (d *Dashboard) setStatus(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	hints := fmt.Sprintf("[%s]r[-] actualizar  [%s]/[-] buscar  [%s]?[-] ayuda  [%s]q[-] salir",
		d.theme.TagAccent, d.theme.TagAccent, d.theme.TagAccent, d.theme.TagAccent)
	d.statusBar.SetText(fmt.Sprintf("[%s]%s[-] [%s]|[-] %s [%s]|[-] %s",
		d.theme.TagMuted, time.Now().Format("15:04:05"),
		d.theme.TagTextPrimary, message,
		d.theme.TagMuted, hints))
}

// applyTheme pushes theme colors to widgets
func (d *Dashboard) applyTheme() {
	tview.Styles.PrimitiveBackgroundColor = d.theme.Bg
	tview.Styles.PrimaryTextColor = d.theme.TextPrimary
	tview.Styles.BorderColor = d.theme.Border

	for _, box := range []*tview.Box{d.header.Box, d.metrics.Box, d.search.Box, d.caseTable.Box, d.regions.Box, d.statusBar.Box} {
		box.SetBackgroundColor(d.theme.Bg)
		box.SetBorderColor(d.theme.Border)
		box.SetTitleColor(d.theme.TextPrimary)
	}
	d.header.SetTextColor(d.theme.TextPrimary)
	d.metrics.SetTextColor(d.theme.TextPrimary)
	d.statusBar.SetTextColor(d.theme.TextMuted)
	d.search.SetFieldBackgroundColor(d.theme.SelectionBg)
	d.search.SetFieldTextColor(d.theme.TextPrimary)
	d.search.SetLabelColor(d.theme.TextMuted)
	d.caseTable.SetSelectedStyle(tcell.StyleDefault.Background(d.theme.SelectionBg).Foreground(d.theme.SelectionFg))
	d.highlightFocus()
}
