package templates

// WrapperTemplate is a LaTeX figure that inputs the generated tikz file.
const WrapperTemplate = `% Generated on {{.GeneratedDate}} for run {{.RunID}}, field {{.YField}}
\begin{figure}[H]
  \centering
  \resizebox{\linewidth}{!}{\input{./{{.PlotFileName}} }}
  \caption[{{.ShortCaption}}]{ {{.Caption}} }
  \label{fig:run-{{.ShortID}}-{{.YField}}}
\end{figure}
`

type WrapperData struct {
	GeneratedDate string
	RunID         string
	ShortID       string
	YField        string
	PlotFileName  string
	ShortCaption  string
	Caption       string
}
