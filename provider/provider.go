// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package provider

import (
	"context"
	"fmt"
	"strings"

	ldap3 "github.com/go-ldap/ldap/v3"
	logger "github.com/juju/loggo"

	"github.com/syunchanp/scimgate/base"
	"github.com/syunchanp/scimgate/conf"
	"github.com/syunchanp/scimgate/ldap"
	"github.com/syunchanp/scimgate/marshal"
	"github.com/syunchanp/scimgate/schema"
)

var log logger.Logger

func init() {
	log = logger.GetLogger("scimgate.provider")
}

// ResourceService is the operation surface the transport calls. Filters
// arrive as raw SCIM filter strings, the attributes parameter as the parsed
// requested-attribute set.
type ResourceService interface {
	Create(ctx context.Context, endpoint string, so *base.SCIMObject, qa *base.QueryAttributes) (*base.SCIMObject, error)

	Get(ctx context.Context, endpoint string, id string, qa *base.QueryAttributes) (*base.SCIMObject, error)

	Query(ctx context.Context, endpoint string, filter string, sort *base.SortParameters, page *base.PageParameters, qa *base.QueryAttributes) (*marshal.ListResponse, error)

	Replace(ctx context.Context, endpoint string, id string, so *base.SCIMObject, qa *base.QueryAttributes) (*base.SCIMObject, error)

	Delete(ctx context.Context, endpoint string, id string) error
}

// Provider implements ResourceService over a DirectoryClient using the
// loaded mapping configuration. Instances are immutable and safe for
// concurrent use, all per-request state lives on the stack.
type Provider struct {
	registry   *schema.Registry
	mappers    map[string]*ldap.ResourceMapper
	client     ldap.DirectoryClient
	clock      ldap.Clock
	maxResults int
	spConfig   *conf.ServiceProviderConfig
}

func New(loaded *conf.Loaded, client ldap.DirectoryClient, clock ldap.Clock) *Provider {
	if clock == nil {
		clock = ldap.SystemClock{}
	}

	pr := &Provider{}
	pr.registry = loaded.Registry
	pr.mappers = loaded.Mappers
	pr.client = client
	pr.clock = clock
	pr.maxResults = loaded.MaxResults
	pr.spConfig = conf.DefaultServiceProviderConfig(loaded.MaxResults)

	return pr
}

// The static service-provider configuration resource.
func (pr *Provider) ServiceProviderConfig() *conf.ServiceProviderConfig {
	return pr.spConfig
}

func (pr *Provider) mapper(endpoint string) (*ldap.ResourceMapper, error) {
	rm := pr.mappers[strings.ToLower(strings.Trim(endpoint, "/"))]
	if rm == nil {
		return nil, base.NewNotFoundError(fmt.Sprintf("No resource is served at the endpoint %s", endpoint))
	}

	return rm, nil
}

func (pr *Provider) Create(ctx context.Context, endpoint string, so *base.SCIMObject, qa *base.QueryAttributes) (*base.SCIMObject, error) {
	rm, err := pr.mapper(endpoint)
	if err != nil {
		return nil, err
	}

	req, serr := rm.ToLdapEntry(so)
	if serr != nil {
		return nil, serr
	}

	log.Debugf("creating the entry %s", req.DN)
	if err := pr.client.Add(ctx, req); err != nil {
		return nil, ldap.MapDirectoryError(err)
	}

	return pr.fetch(ctx, rm, rm.EntryId(addRequestEntry(req)), qa)
}

// the staged form of a created entry, used only to extract the new
// resource's id without consulting the directory again
func addRequestEntry(req *ldap3.AddRequest) *ldap3.Entry {
	attrs := make([]*ldap3.EntryAttribute, 0, len(req.Attributes))
	for _, a := range req.Attributes {
		attrs = append(attrs, ldap3.NewEntryAttribute(a.Type, a.Vals))
	}

	return &ldap3.Entry{DN: req.DN, Attributes: attrs}
}

func (pr *Provider) Get(ctx context.Context, endpoint string, id string, qa *base.QueryAttributes) (*base.SCIMObject, error) {
	rm, err := pr.mapper(endpoint)
	if err != nil {
		return nil, err
	}

	return pr.fetch(ctx, rm, id, qa)
}

func (pr *Provider) fetch(ctx context.Context, rm *ldap.ResourceMapper, id string, qa *base.QueryAttributes) (*base.SCIMObject, error) {
	// id is always returned
	qa.AlwaysInclude(rm.ResourceDescriptor().Schema, "id")

	entry, err := pr.resolveEntry(ctx, rm, id, rm.LdapAttributeTypes(qa))
	if err != nil {
		return nil, err
	}

	so, err := rm.ToScimObject(ctx, entry, qa, pr.client)
	if err != nil {
		return nil, err
	}

	if so == nil {
		return nil, base.NewNotFoundError(fmt.Sprintf("The %s resource %s does not exist", rm.ResourceName, id))
	}

	qa.Pare(so)

	return so, nil
}

// locates the entry backing a resource id, preferring a base-scoped read
// when the id is the RDN value, falling back to a filtered search
func (pr *Provider) resolveEntry(ctx context.Context, rm *ldap.ResourceMapper, id string, attrs []string) (*ldap3.Entry, error) {
	if rm.CanResolveIdToDn() {
		entry, err := pr.client.Read(ctx, rm.IdToDn(id), attrs)
		if err != nil {
			return nil, ldap.MapDirectoryError(err)
		}

		if entry != nil && rm.MatchesSearchFilter(entry) {
			return entry, nil
		}

		return nil, base.NewNotFoundError(fmt.Sprintf("The %s resource %s does not exist", rm.ResourceName, id))
	}

	entries, err := pr.client.Search(ctx, rm.SearchBaseDN(), rm.SearchScope(), rm.IdFilter(id), attrs, nil)
	if err != nil {
		return nil, ldap.MapDirectoryError(err)
	}

	if len(entries) == 0 {
		return nil, base.NewNotFoundError(fmt.Sprintf("The %s resource %s does not exist", rm.ResourceName, id))
	}

	if len(entries) > 1 {
		return nil, base.NewInternalserverError(fmt.Sprintf("The id %s matches more than one entry", id))
	}

	return entries[0], nil
}

func (pr *Provider) Query(ctx context.Context, endpoint string, filter string, sort *base.SortParameters, page *base.PageParameters, qa *base.QueryAttributes) (*marshal.ListResponse, error) {
	rm, err := pr.mapper(endpoint)
	if err != nil {
		return nil, err
	}

	qa.AlwaysInclude(rm.ResourceDescriptor().Schema, "id")

	start := pr.clock.Now()
	defer func() {
		log.Debugf("query of %s served in %s", rm.ResourceName, pr.clock.Now().Sub(start))
	}()

	var fn *base.FilterNode
	if len(strings.TrimSpace(filter)) != 0 {
		var serr *base.ScimError
		fn, serr = base.ParseFilter(filter)
		if serr != nil {
			return nil, serr
		}

		if serr = base.BindFilter(fn, rm.ResourceDescriptor()); serr != nil {
			return nil, serr
		}
	}

	ldapFilter, lossy, serr := rm.ToLdapFilter(fn)
	if serr != nil {
		return nil, serr
	}

	if len(ldapFilter) == 0 {
		ldapFilter = "(objectClass=*)"
	}

	var controls []ldap3.Control
	if sort != nil {
		control, serr := rm.ToSortControl(sort)
		if serr != nil {
			return nil, serr
		}

		controls = append(controls, control)
	}

	// a lossy translation means the original filter is re-evaluated against
	// the mapped resources, which needs every attribute the filter touches
	fetchQa := qa
	if lossy && fn != nil {
		fetchQa = base.NewQueryAttributes("")
	}

	attrs := rm.LdapAttributeTypes(fetchQa)

	log.Debugf("querying %s with the filter %s", rm.ResourceName, ldapFilter)
	entries, err := pr.client.Search(ctx, rm.SearchBaseDN(), rm.SearchScope(), ldapFilter, attrs, controls)
	if err != nil {
		return nil, ldap.MapDirectoryError(err)
	}

	var ev base.Evaluator
	if lossy && fn != nil {
		ev = base.BuildEvaluator(fn)
	}

	items := make([]*base.SCIMObject, 0, len(entries))
	for _, entry := range entries {
		so, err := rm.ToScimObject(ctx, entry, fetchQa, pr.client)
		if err != nil {
			return nil, err
		}

		if so == nil {
			continue
		}

		if ev != nil && !ev.Evaluate(so) {
			continue
		}

		items = append(items, so)
	}

	lr := &marshal.ListResponse{TotalResults: len(items)}

	// paging applies after filtering, count is capped at the configured
	// maximum
	pp := base.NewPageParameters(1, pr.maxResults)
	if page != nil {
		pp = base.NewPageParameters(page.StartIndex, page.Count)
	}

	if pp.Count > pr.maxResults {
		pp.Count = pr.maxResults
	}

	lr.StartIndex = pp.StartIndex

	first := pp.StartIndex - 1
	if first > len(items) {
		first = len(items)
	}

	last := first + pp.Count
	if last > len(items) {
		last = len(items)
	}

	lr.Resources = items[first:last]

	for _, so := range lr.Resources {
		qa.Pare(so)
	}

	return lr, nil
}

func (pr *Provider) Replace(ctx context.Context, endpoint string, id string, so *base.SCIMObject, qa *base.QueryAttributes) (*base.SCIMObject, error) {
	rm, err := pr.mapper(endpoint)
	if err != nil {
		return nil, err
	}

	// the diff needs the current values of every mapped attribute
	allQa := base.NewQueryAttributes("")
	current, err := pr.resolveEntry(ctx, rm, id, rm.LdapAttributeTypes(allQa))
	if err != nil {
		return nil, err
	}

	changes, serr := rm.ToLdapModifications(current, so)
	if serr != nil {
		return nil, serr
	}

	if len(changes) != 0 {
		log.Debugf("modifying the entry %s with %d changes", current.DN, len(changes))
		if err := pr.client.Modify(ctx, current.DN, changes); err != nil {
			return nil, ldap.MapDirectoryError(err)
		}
	}

	return pr.fetch(ctx, rm, id, qa)
}

func (pr *Provider) Delete(ctx context.Context, endpoint string, id string) error {
	rm, err := pr.mapper(endpoint)
	if err != nil {
		return err
	}

	entry, err := pr.resolveEntry(ctx, rm, id, []string{"objectClass"})
	if err != nil {
		return err
	}

	log.Debugf("deleting the entry %s", entry.DN)
	if err := pr.client.Delete(ctx, entry.DN); err != nil {
		return ldap.MapDirectoryError(err)
	}

	return nil
}
