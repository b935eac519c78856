package vector

import (
	"context"
	"testing"

	"github.com/weaviate/weaviate/entities/models"
)

type MockSchemaClient struct {
	CreatedClass    *models.Class
	ExistingClass   *models.Class
	AddedProperties []*models.Property
}

func (m *MockSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	if m.ExistingClass != nil {
		return true, nil
	}
	return false, nil
}

func (m *MockSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	m.CreatedClass = class
	return nil
}

func (m *MockSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return m.ExistingClass, nil
}

func (m *MockSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	m.AddedProperties = append(m.AddedProperties, property)
	return nil
}

func TestEnsureSchema_CreatesClass(t *testing.T) {
	client := &MockSchemaClient{}
	if err := EnsureSchema(context.Background(), client); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	if client.CreatedClass == nil {
		t.Fatal("Class not created")
	}
	if client.CreatedClass.Class != "PaperEmbedding" {
		t.Errorf("Unexpected class name: %s", client.CreatedClass.Class)
	}
	if client.CreatedClass.Vectorizer != "none" {
		t.Errorf("Expected vectorizer none, got %s", client.CreatedClass.Vectorizer)
	}

	expectedProps := map[string]string{
		"paperId":     "string",
		"contentType": "string",
		"chunkIndex":  "int",
		"content":     "text",
		"modelName":   "string",
	}

	for _, prop := range client.CreatedClass.Properties {
		expectedType, ok := expectedProps[prop.Name]
		if !ok {
			t.Errorf("Unexpected property: %s", prop.Name)
			continue
		}
		if len(prop.DataType) == 0 || prop.DataType[0] != expectedType {
			t.Errorf("Property %s has wrong DataType: %v (expected %s)", prop.Name, prop.DataType, expectedType)
		}
		delete(expectedProps, prop.Name)
	}
	if len(expectedProps) > 0 {
		t.Errorf("Missing properties: %v", expectedProps)
	}
}

func TestEnsureSchema_AddsMissingProperties(t *testing.T) {
	// Simulate an older deployment missing the modelName property
	existingClass := &models.Class{
		Class: "PaperEmbedding",
		Properties: []*models.Property{
			{Name: "paperId", DataType: []string{"string"}},
			{Name: "contentType", DataType: []string{"string"}},
			{Name: "chunkIndex", DataType: []string{"int"}},
			{Name: "content", DataType: []string{"text"}},
		},
	}

	client := &MockSchemaClient{ExistingClass: existingClass}

	if err := EnsureSchema(context.Background(), client); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	if client.CreatedClass != nil {
		t.Error("Class should not be recreated")
	}
	if len(client.AddedProperties) != 1 {
		t.Fatalf("Expected 1 added property, got %d", len(client.AddedProperties))
	}
	if client.AddedProperties[0].Name != "modelName" {
		t.Errorf("Expected modelName to be added, got %s", client.AddedProperties[0].Name)
	}
}

func TestEnsureSchema_NoChangesWhenComplete(t *testing.T) {
	existingClass := &models.Class{
		Class: "PaperEmbedding",
		Properties: []*models.Property{
			{Name: "paperId", DataType: []string{"string"}},
			{Name: "contentType", DataType: []string{"string"}},
			{Name: "chunkIndex", DataType: []string{"int"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "modelName", DataType: []string{"string"}},
		},
	}

	client := &MockSchemaClient{ExistingClass: existingClass}

	if err := EnsureSchema(context.Background(), client); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if len(client.AddedProperties) != 0 {
		t.Errorf("Expected no added properties, got %d", len(client.AddedProperties))
	}
}
