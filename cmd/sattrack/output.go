package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/viper"

	"github.com/star/sattrack/internal/passes"
	"github.com/star/sattrack/internal/tle"
	"github.com/star/sattrack/internal/tracker"
	"github.com/star/sattrack/internal/transform"
)

func observerFromFlags(v *viper.Viper) (transform.Observer, error) {
	return transform.NewObserver(v.GetFloat64("lat"), v.GetFloat64("lon"), v.GetFloat64("alt"))
}

type objectPasses struct {
	Object tle.ObjectID  `json:"object"`
	Passes []passes.Pass `json:"passes"`
	Error  string        `json:"error,omitempty"`
}

func passesJSON(results []tracker.ObjectPasses) []objectPasses {
	out := make([]objectPasses, len(results))
	for i, r := range results {
		out[i] = objectPasses{Object: r.Object, Passes: r.Passes}
		if out[i].Passes == nil {
			out[i].Passes = []passes.Pass{}
		}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

func eventTime(ev *passes.PassEvent) string {
	if ev == nil {
		return "-"
	}
	return ev.Epoch.Format(time.RFC3339)
}

// writePasses prints one row per pass. A missing rise or set means the
// window cut the pass.
func writePasses(w io.Writer, results []tracker.ObjectPasses) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OBJECT\tRISE\tAZ\tCULMINATE\tEL\tSET\tAZ")
	for _, r := range results {
		name := fmt.Sprintf("%d %s", r.Object.CatalogNumber, r.Object.Name)
		if r.Err != nil {
			fmt.Fprintf(tw, "%s\terror: %v\n", name, r.Err)
			continue
		}
		for _, p := range r.Passes {
			riseAz, el, setAz := "-", "-", "-"
			if p.Rise != nil {
				riseAz = fmt.Sprintf("%.0f", p.Rise.View.Azimuth)
			}
			if p.Culminate != nil {
				el = fmt.Sprintf("%.1f", p.Culminate.View.Elevation)
			}
			if p.Set != nil {
				setAz = fmt.Sprintf("%.0f", p.Set.View.Azimuth)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				name, eventTime(p.Rise), riseAz, eventTime(p.Culminate), el, eventTime(p.Set), setAz)
		}
	}
	tw.Flush()
}
