package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dangerclosesec/tenantkit/sdk/client"
)

const (
	// Change these values to match your environment
	serviceURL = "http://localhost:8080"
)

func main() {
	// Initialize the client
	c := client.NewClient(&client.Config{
		BaseURL: serviceURL,
		Timeout: 10 * time.Second,
	})

	// Create a context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Run the example
	if err := runExample(ctx, c); err != nil {
		log.Fatalf("Error running example: %v", err)
	}
}

func runExample(ctx context.Context, c *client.Client) error {
	fmt.Println("Running TenantKit SDK example...")

	// Step 1: Sign in
	fmt.Println("\n1. Logging in...")
	session, err := c.Login(ctx, &client.LoginRequest{
		Email:    os.Getenv("TENANTKIT_EMAIL"),
		Password: os.Getenv("TENANTKIT_PASSWORD"),
	})
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	fmt.Printf("Signed in as %s (%s)\n", session.User.Email, session.User.Role)

	// Step 2: Create an organization
	fmt.Println("\n2. Creating organization...")
	org, err := c.CreateOrganization(ctx, &client.CreateOrganizationRequest{Name: "Example Co"})
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	fmt.Printf("Organization created: %s (%s)\n", org.Name, org.Slug)

	// Step 3: Invite a teammate
	fmt.Println("\n3. Inviting teammate...")
	invite, err := c.CreateInvitation(ctx, org.ID, &client.CreateInvitationRequest{
		Email: "teammate@example.com",
		Role:  "member",
	})
	if err != nil {
		return fmt.Errorf("failed to invite: %w", err)
	}
	fmt.Printf("Invitation %s sent=%t, expires %s\n", invite.Invitation.ID, invite.EmailSent, invite.Invitation.ExpiresAt.Format(time.RFC3339))

	// Step 4: Preview it the way the invitee would
	preview, err := c.LookupInvitation(ctx, invite.Token)
	if err != nil {
		return fmt.Errorf("failed to look up invitation: %w", err)
	}
	fmt.Printf("Invitee sees: join %s as %s\n", preview.OrganizationName, preview.Role)

	fmt.Println("\nExample completed successfully!")
	return nil
}
