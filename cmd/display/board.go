package main

import (
	"fmt"
	"io"
	"time"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/ariefcatur/go-realtime-shop/internal/syncer"
)

// render prints the public timer board: shop notices, then one row per
// open order with the seconds left until its promised time.
func render(w io.Writer, st syncer.State, now time.Time) {
	name := st.Shop.Name
	if name == "" {
		name = st.Shop.ID
	}
	fmt.Fprintf(w, "== %s (%s) ==\n", name, st.Shop.Status)
	if st.Shop.Status == orders.ShopPauseOrdering && st.Shop.EmergencyMessage != "" {
		fmt.Fprintf(w, "! %s\n", st.Shop.EmergencyMessage)
	}
	if st.Shop.PublicMessage != "" {
		fmt.Fprintf(w, "%s\n", st.Shop.PublicMessage)
	}

	queue := st.Queue()
	if len(queue) == 0 {
		fmt.Fprintln(w, "no open orders")
		return
	}
	for _, o := range queue {
		wait := orders.WaitSeconds(o, now)
		label := fmt.Sprintf("%d:%02d", wait/60, wait%60)
		if o.Status == orders.OrderCompleted {
			label = "ready"
		} else if o.DelaySeconds > 0 {
			label += fmt.Sprintf(" (+%ds)", o.DelaySeconds)
		}
		fmt.Fprintf(w, "#%-4d %-10s %s\n", o.Index, o.Status, label)
	}
}
