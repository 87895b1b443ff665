package main

import (
	_ "embed"
	"strings"
)

//go:embed discovery_profile.json
var discoveryProfileTemplate string

// discoveryDocument serves the /.well-known/ucp profile with the deployment
// endpoint and shop id substituted into the embedded template.
type discoveryDocument struct {
	rendered []byte
}

func newDiscoveryDocument(endpoint, shopID string) *discoveryDocument {
	doc := strings.ReplaceAll(discoveryProfileTemplate, "{{ENDPOINT}}", endpoint)
	doc = strings.ReplaceAll(doc, "{{SHOP_ID}}", shopID)
	return &discoveryDocument{rendered: []byte(doc)}
}

func (d *discoveryDocument) Render() []byte {
	return d.rendered
}
