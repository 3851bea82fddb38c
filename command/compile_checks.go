package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[AttachVoucherMessage] = (*AttachVoucherCommand)(nil)
	_ gocmd.Commander[ReplayEffectsMessage] = (*ReplayEffectsCommand)(nil)
)
