package manager

import (
	"io"
	"log/slog"

	"ttrgbplus/internal/config"
	"ttrgbplus/internal/device"
)

// Builder turns a group config and its resolved devices into a Group.
type Builder func(cfg config.GroupConfig, devices []*device.Endpoint) (Group, error)

// Assignment is the result of partitioning the registry across groups.
type Assignment struct {
	Kind Kind

	// Groups holds the explicit groups in declaration order, then Default.
	Groups  []Group
	Default Group

	logger *slog.Logger
}

// Resolve partitions the registry's devices across groups of one kind.
//
// Explicit groups claim the devices they reference, in declaration order;
// referencing an unknown device, or one already claimed, is a configuration
// error. Each group only receives the devices with the kind's capability.
// The default group (setting "default", case-insensitive; the last one wins
// if several are declared) receives every device left unclaimed. A missing
// default group is a configuration error.
func Resolve(groups []config.GroupConfig, reg *device.Registry, kind Kind, build Builder, logger *slog.Logger) (*Assignment, error) {
	if logger == nil {
		logger = slog.Default()
	}
	section := kind.Section()
	capability := kind.Capability()

	defaultIdx := -1
	for i, g := range groups {
		if !g.IsDefault() {
			continue
		}
		if defaultIdx >= 0 {
			logger.Warn("multiple default groups, using the last one",
				"section", section, "ignored_model", groups[defaultIdx].Model, "model", g.Model)
		}
		defaultIdx = i
	}
	if defaultIdx < 0 {
		return nil, config.Errorf(section, "", "no %q group configured", config.DefaultSetting)
	}

	claimed := make(map[device.ID]string)
	a := &Assignment{Kind: kind, logger: logger}
	fail := func(err error) (*Assignment, error) {
		closeGroups(a.Groups, logger)
		return nil, err
	}

	for _, g := range groups {
		if g.IsDefault() {
			continue
		}
		var members []*device.Endpoint
		for _, ref := range g.Devices {
			ep, err := reg.Lookup(ref.Unit, ref.Port)
			if err != nil {
				return fail(config.Errorf(section, g.Setting, "device %s: %w", ref, err))
			}
			if owner, ok := claimed[ep.ID()]; ok {
				return fail(config.Errorf(section, g.Setting, "device %s already assigned to group %q", ref, owner))
			}
			claimed[ep.ID()] = g.Setting
			if !ep.Capabilities().Has(capability) {
				logger.Debug("skipping device without capability", "section", section,
					"group", g.Setting, "device", ref.String(), "model", ep.Model().Name)
				continue
			}
			members = append(members, ep)
		}
		if len(members) == 0 {
			logger.Warn("group has no devices", "section", section, "group", g.Setting)
		}
		grp, err := build(g, members)
		if err != nil {
			return fail(err)
		}
		a.Groups = append(a.Groups, grp)
	}

	var rest []*device.Endpoint
	for _, ep := range reg.Endpoints() {
		if _, ok := claimed[ep.ID()]; ok {
			continue
		}
		if ep.Capabilities().Has(capability) {
			rest = append(rest, ep)
		}
	}
	def := groups[defaultIdx]
	grp, err := build(def, rest)
	if err != nil {
		return fail(err)
	}
	a.Default = grp
	a.Groups = append(a.Groups, grp)

	logger.Info("groups resolved", "section", section, "groups", len(a.Groups), "default_devices", len(rest))
	return a, nil
}

// Stop stops every group.
func (a *Assignment) Stop() {
	for _, g := range a.Groups {
		g.Stop()
	}
}

// Close stops every group and releases model resources.
func (a *Assignment) Close() {
	closeGroups(a.Groups, a.logger)
}

func closeGroups(groups []Group, logger *slog.Logger) {
	for _, g := range groups {
		g.Stop()
		if c, ok := g.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("close group", "group", g.Name(), "err", err)
			}
		}
	}
}
