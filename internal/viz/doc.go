// Package viz renders simulation results for the terminal.
//
//   - [PlotHistory] and [PlotCashFlow]: line charts of one trial
//   - [Describe] and [SummaryTable]: percentile tables over an ensemble
//   - [FormatMoney]: thousands-separated currency strings
//
// Colors follow the active [Theme]; select one with [SetTheme].
package viz
