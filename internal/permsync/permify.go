package permsync

import (
	"context"
	"errors"
	"fmt"

	v1 "buf.build/gen/go/permifyco/permify/protocolbuffers/go/base/v1"
	permify_grpc "github.com/Permify/permify-go/grpc"
	"github.com/dangerclosesec/tenantkit/internal/permsync/schema"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	entityOrganization = "organization"
	subjectUser        = "user"
)

// DataClient is the subset of the Permify data API used here.
type DataClient interface {
	WriteRelationships(ctx context.Context, in *v1.RelationshipWriteRequest, opts ...grpc.CallOption) (*v1.RelationshipWriteResponse, error)
	DeleteRelationships(ctx context.Context, in *v1.RelationshipDeleteRequest, opts ...grpc.CallOption) (*v1.RelationshipDeleteResponse, error)
}

// SchemaClient is the subset of the Permify schema API used here.
type SchemaClient interface {
	Write(ctx context.Context, in *v1.SchemaWriteRequest, opts ...grpc.CallOption) (*v1.SchemaWriteResponse, error)
}

type Permify struct {
	data          DataClient
	schema        SchemaClient
	tenant        string
	schemaVersion string
}

type Option func(*Permify)

func WithTenant(tenant string) Option {
	return func(p *Permify) {
		p.tenant = tenant
	}
}

// WithSchemaVersion pins writes to a schema version; empty uses the latest.
func WithSchemaVersion(version string) Option {
	return func(p *Permify) {
		p.schemaVersion = version
	}
}

// WithSchemaClient enables WriteSchema.
func WithSchemaClient(c SchemaClient) Option {
	return func(p *Permify) {
		p.schema = c
	}
}

// NewPermify dials the Permify gRPC endpoint at host.
func NewPermify(host string, opts ...Option) (*Permify, error) {
	client, err := permify_grpc.NewClient(
		permify_grpc.Config{
			Endpoint: host,
		},
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("permify client: %w", err)
	}
	opts = append([]Option{WithSchemaClient(client.Schema)}, opts...)
	return NewPermifyWithClient(client.Data, opts...), nil
}

func NewPermifyWithClient(data DataClient, opts ...Option) *Permify {
	p := &Permify{data: data, tenant: "t1"}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Permify) Grant(ctx context.Context, members ...Membership) error {
	if len(members) == 0 {
		return nil
	}

	tuples := make([]*v1.Tuple, 0, len(members))
	for _, m := range members {
		tuples = append(tuples, &v1.Tuple{
			Entity:   &v1.Entity{Type: entityOrganization, Id: m.OrganizationID.String()},
			Relation: m.Role,
			Subject:  &v1.Subject{Type: subjectUser, Id: m.UserID.String()},
		})
	}

	_, err := p.data.WriteRelationships(ctx, &v1.RelationshipWriteRequest{
		TenantId: p.tenant,
		Metadata: &v1.RelationshipWriteRequestMetadata{
			SchemaVersion: p.schemaVersion,
		},
		Tuples: tuples,
	})
	if err != nil {
		return fmt.Errorf("write relationships: %w", err)
	}
	return nil
}

func (p *Permify) Revoke(ctx context.Context, m Membership) error {
	_, err := p.data.DeleteRelationships(ctx, &v1.RelationshipDeleteRequest{
		TenantId: p.tenant,
		Filter: &v1.TupleFilter{
			Entity: &v1.EntityFilter{
				Type: entityOrganization,
				Ids:  []string{m.OrganizationID.String()},
			},
			Relation: m.Role,
			Subject: &v1.SubjectFilter{
				Type: subjectUser,
				Ids:  []string{m.UserID.String()},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete relationships: %w", err)
	}
	return nil
}

func (p *Permify) DropOrganization(ctx context.Context, orgID uuid.UUID) error {
	_, err := p.data.DeleteRelationships(ctx, &v1.RelationshipDeleteRequest{
		TenantId: p.tenant,
		Filter: &v1.TupleFilter{
			Entity: &v1.EntityFilter{
				Type: entityOrganization,
				Ids:  []string{orgID.String()},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete relationships: %w", err)
	}
	return nil
}

// CheckSchema verifies that s declares an organization relation to users for
// every role a membership can carry.
func CheckSchema(s *schema.Schema, roles ...string) error {
	if err := s.RequireRelations(entityOrganization, subjectUser, roles...); err != nil {
		return fmt.Errorf("permify schema: %w", err)
	}
	return nil
}

// WriteSchema parses src, checks it against roles and writes it to the
// tenant. It returns the schema version Permify assigned.
func (p *Permify) WriteSchema(ctx context.Context, src string, roles ...string) (string, error) {
	if p.schema == nil {
		return "", errors.New("permify schema client not configured")
	}

	parsed, err := schema.Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse schema: %w", err)
	}
	if err := CheckSchema(parsed, roles...); err != nil {
		return "", err
	}

	resp, err := p.schema.Write(ctx, &v1.SchemaWriteRequest{
		TenantId: p.tenant,
		Schema:   src,
	})
	if err != nil {
		return "", fmt.Errorf("write schema: %w", err)
	}
	return resp.GetSchemaVersion(), nil
}
