// Package broker implements the request builders and sync façade: one
// builder per broker operation, each populating a *wire.Frame from a
// typed options struct under a uniform option-normalization policy,
// plus a Client type pairing those builders with blocking and callback
// entry points over a transport.Connection.
package broker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bw2/wire"
)

// commonOptions is the set of fields publish, subscribe, query, and list
// share verbatim.
type commonOptions struct {
	URI                string
	PrimaryAccessChain string
	ElaboratePAC       string
	AutoChain          bool
	ExpiryUnix         *int64
	ExpiryDeltaMs      *int64
}

func applyCommon(f *wire.Frame, o commonOptions) {
	if o.URI != "" {
		f.AddKVString("uri", o.URI)
	}
	if o.PrimaryAccessChain != "" {
		f.AddKVString("primary_access_chain", o.PrimaryAccessChain)
	}
	if o.ExpiryUnix != nil {
		f.AddKVString("expiry", formatExpiry(*o.ExpiryUnix))
	}
	if o.ExpiryDeltaMs != nil {
		f.AddKVString("expirydelta", formatExpiryDelta(*o.ExpiryDeltaMs))
	}
	if o.ElaboratePAC != "" {
		if strings.EqualFold(o.ElaboratePAC, "full") {
			f.AddKVString("elaborate_pac", "full")
		} else {
			f.AddKVString("elaborate_pac", "partial")
		}
	}
	if o.AutoChain {
		f.AddKVString("autochain", "true")
	}
}

func applyUnpack(f *wire.Frame, unpack *bool) {
	f.AddKVString("unpack", formatBool(resolveUnpack(unpack)))
}

// resolveUnpack applies the default-true rule for the unpack option: nil
// means true, otherwise the pointed-to value. Used both to render the
// outbound "unpack" KV and to decide client-side whether a delivered
// Result should carry RO/PO.
func resolveUnpack(unpack *bool) bool {
	if unpack == nil {
		return true
	}
	return *unpack
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func formatExpiry(unixSeconds int64) string {
	return time.Unix(unixSeconds, 0).UTC().Format("2006-01-02T15:04:05Z")
}

func formatExpiryDelta(ms int64) string {
	return fmt.Sprintf("%dms", ms)
}

// PublishOptions configures a publish/persist request.
type PublishOptions struct {
	commonOptions
	Persist        bool
	RoutingObjects []wire.RoutingObject
	PayloadObjects []wire.PayloadObject
}

func buildPublishFrame(seqNum uint32, o PublishOptions) *wire.Frame {
	command := "publ"
	if o.Persist {
		command = "pers"
	}
	f := wire.NewFrame(command, seqNum)
	applyCommon(f, o.commonOptions)
	for _, ro := range o.RoutingObjects {
		f.AddRoutingObject(ro)
	}
	for _, po := range o.PayloadObjects {
		f.AddPayloadObject(po)
	}
	return f
}

// SubscribeOptions configures a subscribe request. Unpack defaults to
// true when nil.
type SubscribeOptions struct {
	commonOptions
	Unpack *bool
}

func buildSubscribeFrame(seqNum uint32, o SubscribeOptions) *wire.Frame {
	f := wire.NewFrame("subs", seqNum)
	applyCommon(f, o.commonOptions)
	applyUnpack(f, o.Unpack)
	return f
}

// QueryOptions configures a query request. Same shape as subscribe.
type QueryOptions struct {
	commonOptions
	Unpack *bool
}

func buildQueryFrame(seqNum uint32, o QueryOptions) *wire.Frame {
	f := wire.NewFrame("quer", seqNum)
	applyCommon(f, o.commonOptions)
	applyUnpack(f, o.Unpack)
	return f
}

// ListOptions configures a list request.
type ListOptions struct {
	commonOptions
}

func buildListFrame(seqNum uint32, o ListOptions) *wire.Frame {
	f := wire.NewFrame("list", seqNum)
	applyCommon(f, o.commonOptions)
	return f
}

// SetEntityOptions carries the raw entity blob for a set-entity request.
type SetEntityOptions struct {
	Entity []byte
}

func buildSetEntityFrame(seqNum uint32, o SetEntityOptions) *wire.Frame {
	f := wire.NewFrame("sete", seqNum)
	f.AddPayloadObject(wire.NewPayloadObject(wire.EntityPOType, o.Entity))
	return f
}

// MakeEntityOptions configures a make-entity request.
type MakeEntityOptions struct {
	Contact          string
	Comment          string
	Revokers         []string
	OmitCreationDate bool
	ExpiryUnix       *int64
	ExpiryDeltaMs    *int64
}

func buildMakeEntityFrame(seqNum uint32, o MakeEntityOptions) *wire.Frame {
	f := wire.NewFrame("make", seqNum)
	if o.Contact != "" {
		f.AddKVString("contact", o.Contact)
	}
	if o.Comment != "" {
		f.AddKVString("comment", o.Comment)
	}
	for _, r := range o.Revokers {
		f.AddKVString("revoker", r)
	}
	f.AddKVString("omitcreationdate", formatBool(o.OmitCreationDate))
	if o.ExpiryUnix != nil {
		f.AddKVString("expiry", formatExpiry(*o.ExpiryUnix))
	}
	if o.ExpiryDeltaMs != nil {
		f.AddKVString("expirydelta", formatExpiryDelta(*o.ExpiryDeltaMs))
	}
	return f
}

// MakeDotOptions configures a make-dot request.
type MakeDotOptions struct {
	To                string
	URI               string
	TTL               *int
	IsPermission      bool
	Contact           string
	Comment           string
	Revokers          []string
	OmitCreationDate  bool
	ExpiryUnix        *int64
	ExpiryDeltaMs     *int64
	AccessPermissions string
}

func buildMakeDotFrame(seqNum uint32, o MakeDotOptions) *wire.Frame {
	f := wire.NewFrame("makd", seqNum)
	if o.To != "" {
		f.AddKVString("to", o.To)
	}
	if o.URI != "" {
		f.AddKVString("uri", o.URI)
	}
	if o.TTL != nil {
		f.AddKVString("ttl", strconv.Itoa(*o.TTL))
	}
	if o.IsPermission {
		f.AddKVString("ispermission", "true")
	}
	if o.Contact != "" {
		f.AddKVString("contact", o.Contact)
	}
	if o.Comment != "" {
		f.AddKVString("comment", o.Comment)
	}
	for _, r := range o.Revokers {
		f.AddKVString("revoker", r)
	}
	f.AddKVString("omitcreationdate", formatBool(o.OmitCreationDate))
	if o.ExpiryUnix != nil {
		f.AddKVString("expiry", formatExpiry(*o.ExpiryUnix))
	}
	if o.ExpiryDeltaMs != nil {
		f.AddKVString("expirydelta", formatExpiryDelta(*o.ExpiryDeltaMs))
	}
	if o.AccessPermissions != "" {
		f.AddKVString("accesspermissions", o.AccessPermissions)
	}
	return f
}

// MakeChainOptions configures a make-chain request.
type MakeChainOptions struct {
	Dots         []string
	IsPermission bool
	Unelaborate  bool
}

func buildMakeChainFrame(seqNum uint32, o MakeChainOptions) *wire.Frame {
	f := wire.NewFrame("makc", seqNum)
	for _, d := range o.Dots {
		f.AddKVString("dot", d)
	}
	if o.IsPermission {
		f.AddKVString("ispermission", "true")
	}
	if o.Unelaborate {
		f.AddKVString("unelaborate", "true")
	}
	return f
}
