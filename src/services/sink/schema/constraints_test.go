package schema_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/services/sink/schema"
)

var _ = Describe("GetNodeKeys", func() {
	It("returns the properties of the only qualifying constraint", func() {
		// ARRANGE
		constraints := []domain.Constraint{
			{Label: "Person", Type: domain.ConstraintUnique, Properties: []string{"id"}},
		}

		// ACT
		keys := schema.GetNodeKeys([]string{"Person"}, []string{"id", "name"}, constraints)

		// ASSERT
		Expect(keys).To(Equal([]string{"id"}))
	})

	It("picks the smallest-cardinality qualifying constraint", func() {
		constraints := []domain.Constraint{
			{Label: "Person", Type: domain.ConstraintNodeKey, Properties: []string{"first", "last"}},
			{Label: "Person", Type: domain.ConstraintUnique, Properties: []string{"ssn"}},
		}

		keys := schema.GetNodeKeys([]string{"Person"}, []string{"first", "last", "ssn"}, constraints)

		Expect(keys).To(Equal([]string{"ssn"}))
	})

	It("breaks cardinality ties by label order", func() {
		constraints := []domain.Constraint{
			{Label: "Employee", Type: domain.ConstraintUnique, Properties: []string{"badge"}},
			{Label: "Person", Type: domain.ConstraintUnique, Properties: []string{"id"}},
		}

		keys := schema.GetNodeKeys([]string{"Person", "Employee"}, []string{"id", "badge"}, constraints)

		Expect(keys).To(Equal([]string{"id"}))
	})

	It("breaks remaining ties lexicographically by sorted property tuple", func() {
		constraints := []domain.Constraint{
			{Label: "Person", Type: domain.ConstraintUnique, Properties: []string{"email"}},
			{Label: "Person", Type: domain.ConstraintUnique, Properties: []string{"alias"}},
		}

		keys := schema.GetNodeKeys([]string{"Person"}, []string{"email", "alias"}, constraints)

		Expect(keys).To(Equal([]string{"alias"}))
	})

	It("ignores constraints whose properties are not all present", func() {
		constraints := []domain.Constraint{
			{Label: "Person", Type: domain.ConstraintUnique, Properties: []string{"ssn"}},
			{Label: "Person", Type: domain.ConstraintUnique, Properties: []string{"id", "realm"}},
		}

		keys := schema.GetNodeKeys([]string{"Person"}, []string{"id", "realm", "name"}, constraints)

		Expect(keys).To(Equal([]string{"id", "realm"}))
	})

	It("ignores constraints on other labels", func() {
		constraints := []domain.Constraint{
			{Label: "Company", Type: domain.ConstraintUnique, Properties: []string{"id"}},
		}

		keys := schema.GetNodeKeys([]string{"Person"}, []string{"id"}, constraints)

		Expect(keys).To(BeEmpty())
	})

	It("ignores constraint types other than UNIQUE and NODE_KEY", func() {
		constraints := []domain.Constraint{
			{Label: "Person", Type: domain.ConstraintType("EXISTS"), Properties: []string{"id"}},
		}

		keys := schema.GetNodeKeys([]string{"Person"}, []string{"id"}, constraints)

		Expect(keys).To(BeEmpty())
	})

	It("returns sorted properties for multi-property constraints", func() {
		constraints := []domain.Constraint{
			{Label: "Person", Type: domain.ConstraintNodeKey, Properties: []string{"last", "first"}},
		}

		keys := schema.GetNodeKeys([]string{"Person"}, []string{"first", "last"}, constraints)

		Expect(keys).To(Equal([]string{"first", "last"}))
	})
})

var _ = Describe("FilterUniqueConstraints", func() {
	It("keeps only identity-capable constraints on the node's labels", func() {
		constraints := []domain.Constraint{
			{Label: "Person", Type: domain.ConstraintUnique, Properties: []string{"id"}},
			{Label: "Person", Type: domain.ConstraintType("EXISTS"), Properties: []string{"name"}},
			{Label: "Company", Type: domain.ConstraintUnique, Properties: []string{"vat"}},
		}

		filtered := schema.FilterUniqueConstraints([]string{"Person"}, constraints)

		Expect(filtered).To(HaveLen(1))
		Expect(filtered[0].Label).To(Equal("Person"))
	})
})
