/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package deadline

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/shirou/gopsutil/load"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

var (
	missedColor  = color.New(color.FgYellow)
	reachedColor = color.New(color.FgGreen)
)

// LogOutcome writes a one-line, TTY-gated status for a deadline
// outcome. On Missed it attaches host load averages so an operator can
// tell a missed deadline from genuine CPU starvation.
func LogOutcome(w io.Writer, outcome Outcome, scenarioSeconds float64) {
	colorize := isTerminal(w)

	switch outcome {
	case Missed:
		avg, err := load.Avg()
		msg := fmt.Sprintf("deadline missed at t=%.3fs", scenarioSeconds)
		if err == nil {
			msg = fmt.Sprintf("%s (load1=%.2f load5=%.2f load15=%.2f)", msg, avg.Load1, avg.Load5, avg.Load15)
		}
		log.Warn(msg)
		if colorize {
			missedColor.Fprintln(w, msg)
		} else {
			fmt.Fprintln(w, msg)
		}
	case Reached:
		msg := fmt.Sprintf("deadline reached at t=%.3fs", scenarioSeconds)
		log.Debug(msg)
		if colorize {
			reachedColor.Fprintln(w, msg)
		}
	case Restart:
		log.Info("scenario restart requested")
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
