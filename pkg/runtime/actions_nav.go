package runtime

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Tort1k558/Camouflow/pkg/driver"
	"github.com/Tort1k558/Camouflow/pkg/schema"
)

func (e *Executor) actionGoto(ctx context.Context, st *schema.Step) Outcome {
	url := e.resolve(st.StringField("value"))
	waitUntil := firstField(st, "wait_until")
	if waitUntil == "" {
		waitUntil = "load"
	}
	if err := e.drv.Open(ctx, url, waitUntil, stepTimeout(st)); err != nil {
		return stopDriver("goto", err)
	}
	return Next()
}

func (e *Executor) actionWaitForLoadState(ctx context.Context, st *schema.Step) Outcome {
	state := firstField(st, "state", "wait_until")
	if state == "" {
		state = "load"
	}
	if err := e.drv.WaitForLoadState(ctx, state, stepTimeout(st)); err != nil {
		return stopDriver("wait_for_load_state", err)
	}
	return Next()
}

func (e *Executor) actionWaitElement(ctx context.Context, st *schema.Step) Outcome {
	target := e.buildTarget(st)
	if target.Selector == "" {
		return Stop("Selector is empty for wait_element")
	}
	if _, err := e.drv.Locate(ctx, target); err != nil {
		if driver.IsTimeout(err) {
			return Stopf("Selector %s not found", target.Selector)
		}
		return stopDriver("wait_element", err)
	}
	return Next()
}

func (e *Executor) actionSleep(ctx context.Context, st *schema.Step) Outcome {
	seconds, ok := st.FloatField("seconds")
	if !ok {
		if ms, hasMS := st.FloatField("timeout_ms"); hasMS {
			seconds = ms / 1000
		}
	}
	if seconds <= 0 {
		return Next()
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return Stopf("sleep interrupted: %v", ctx.Err())
	}
	return Next()
}

func (e *Executor) actionClick(ctx context.Context, st *schema.Step) Outcome {
	el, out, ok := e.locate(ctx, st, "click")
	if !ok {
		return out
	}
	opts := driver.ClickOptions{Button: st.StringField("button")}
	if delay, hasDelay := st.FloatField("click_delay_ms"); hasDelay {
		opts.Delay = time.Duration(delay * float64(time.Millisecond))
	}
	if err := el.Click(ctx, opts); err != nil {
		return stopDriver("click", err)
	}
	return Next()
}

func (e *Executor) actionType(ctx context.Context, st *schema.Step) Outcome {
	el, out, ok := e.locate(ctx, st, "typing")
	if !ok {
		return out
	}
	text := e.resolve(st.StringField("value"))
	clear := st.BoolField("clear", true)
	// Focus first; failures here are not fatal, the type call decides.
	_ = el.Click(ctx, driver.ClickOptions{})
	if err := el.Type(ctx, text, clear); err != nil {
		return stopDriver("type", err)
	}
	return Next()
}

func (e *Executor) actionExtract(ctx context.Context, st *schema.Step) Outcome {
	el, out, ok := e.locate(ctx, st, "extract_text")
	if !ok {
		return out
	}
	var (
		content string
		err     error
	)
	if attr := st.StringField("attribute"); attr != "" {
		content, err = el.Attribute(ctx, attr)
	} else {
		content, err = el.Text(ctx)
	}
	if err != nil {
		return stopDriver("extract_text", err)
	}
	if st.BoolField("strip", true) {
		content = strings.TrimSpace(content)
	}
	target := firstField(st, "to_var", "var", "name")
	if target == "" {
		target = "last_value"
	}
	e.profile.Set(target, content)
	e.log.Info().Str("var", target).Str("value", content).Msg("saved extracted content")
	return Next()
}

func (e *Executor) actionNewTab(ctx context.Context, st *schema.Step) Outcome {
	url := e.resolve(st.StringField("value"))
	waitUntil := firstField(st, "wait_until")
	if waitUntil == "" {
		waitUntil = "load"
	}
	if err := e.drv.NewTab(ctx, url, waitUntil, stepTimeout(st)); err != nil {
		return stopDriver("new_tab", err)
	}
	return Next()
}

func (e *Executor) actionSwitchTab(ctx context.Context, st *schema.Step) Outcome {
	idx, hasIdx := st.FloatField("index")
	if !hasIdx {
		idx, hasIdx = st.FloatField("tab_index")
	}
	if !hasIdx {
		if fromVar := strings.TrimSpace(st.StringField("from_var")); fromVar != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(e.profile.Get(fromVar))); err == nil {
				idx = float64(n)
			}
		}
	}
	if err := e.drv.SwitchTab(ctx, int(idx)); err != nil {
		return Stop(err.Error())
	}
	return Next()
}

func (e *Executor) actionCloseTab(ctx context.Context, st *schema.Step) Outcome {
	idx := -1
	if n, ok := st.FloatField("index"); ok {
		idx = int(n)
	} else if n, ok := st.FloatField("tab_index"); ok {
		idx = int(n)
	}
	if err := e.drv.CloseTab(ctx, idx); err != nil {
		return stopDriver("close_tab", err)
	}
	return Next()
}

func (e *Executor) actionEnd(ctx context.Context) Outcome {
	e.log.Info().Str("account", e.accountName).Msg("end step, closing session")
	if err := e.drv.Close(ctx, true); err != nil {
		e.log.Warn().Err(err).Msg("session close failed on end step")
	}
	return End()
}
