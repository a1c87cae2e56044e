package templates

const PlotTemplate = `% Generated on {{.GeneratedDate}}
%
% Run ID: {{.RunID}}
% Machine: {{.MachineName}}
% Description: {{.Description}}
% Workload checksum: {{.WorkloadChecksum}}
% Started: {{.RunStarted}}
% Finished: {{.RunFinished}}
% Duration: {{.DurationMS}}ms over {{.Ticks}} ticks ({{.TickIntervalMS}}ms per tick)
% Cores: {{.Cores}}, tasks: {{.Tasks}}
% Policy: {{.Policy}} (balance interval {{.BalanceInterval}}, max hops {{.MaxHops}})
% Driver Version: {{.DriverVersion}}
%
% Host Information:
% Hostname: {{.Hostname}}
% CPU: {{.CPUVendor}} {{.CPUModel}} (topology: {{.TopologySource}})
% Kernel: {{.KernelVersion}}
% OS: {{.OSInfo}}
%
\begin{tikzpicture}
	\begin{axis}[
		xlabel={ {{.XLabel}} },
		ylabel={ {{.YLabel}} },
		width=\textwidth,
		height=1\textwidth,
		xmin={{.XMin}}, xmax={{.XMax}},
		ymin={{.YMin}}, ymax={{.YMax}},
		ymajorgrids,
		grid style=dashed,
		legend columns=2,
		legend pos=north east,
	]

{{range .Plots}}
% Core: {{.Core}} ({{.Domain}})
% addplot source: run_id={{$.RunID}} field={{$.Fieldname}} core={{.Core}}
\addplot+[{{.Style}}]
  coordinates {
{{range .Coordinates}}    {{.}}
{{end}}  };
\addlegendentry{ {{.LegendEntry}} }
{{end}}
	\end{axis}
\end{tikzpicture}
`

type PlotData struct {
	GeneratedDate    string
	RunID            string
	MachineName      string
	Description      string
	WorkloadChecksum string
	RunStarted       string
	RunFinished      string
	DurationMS       int64
	Ticks            int64
	TickIntervalMS   int64
	Cores            int64
	Tasks            int64
	Policy           string
	BalanceInterval  int64
	MaxHops          int64
	TopologySource   string
	Hostname         string
	CPUVendor        string
	CPUModel         string
	KernelVersion    string
	OSInfo           string
	DriverVersion    string
	XLabel           string
	YLabel           string
	Fieldname        string
	XMin             string
	XMax             string
	YMin             string
	YMax             string
	Plots            []PlotSeries
}

type PlotSeries struct {
	Core        int
	Domain      string
	Style       string
	LegendEntry string
	Coordinates []string
}
