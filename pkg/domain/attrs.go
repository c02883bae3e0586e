package domain

// Typed attribute views over the schema-less attribute map. Each view decodes
// the well-known attributes for its entity type and collects everything else
// into Extra so unknown attributes survive round trips.

// SubstanceAttrs is the typed view of a substance entity.
type SubstanceAttrs struct {
	Name        string
	Formula     string
	CASNumber   string
	HazardClass string
	PPERequired string
	Extra       map[string]any
}

// Substance decodes the entity's attributes as a substance.
func (e Entity) Substance() SubstanceAttrs {
	known := map[string]bool{"name": true, "formula": true, "cas_number": true, "hazard_class": true, "ppe_required": true}
	return SubstanceAttrs{
		Name:        e.StringAttr("name"),
		Formula:     e.StringAttr("formula"),
		CASNumber:   e.StringAttr("cas_number"),
		HazardClass: e.StringAttr("hazard_class"),
		PPERequired: e.StringAttr("ppe_required"),
		Extra:       extraAttrs(e.Attributes, known),
	}
}

// ContainerAttrs is the typed view of a container entity.
type ContainerAttrs struct {
	Name              string
	Material          string
	Location          string
	CapacityLitres    float64
	TemperatureRating float64
	Extra             map[string]any
}

// Container decodes the entity's attributes as a container.
func (e Entity) Container() ContainerAttrs {
	known := map[string]bool{"name": true, "material": true, "location": true, "capacity_litres": true, "temperature_rating": true}
	capacity, _ := e.NumberAttr("capacity_litres")
	rating, _ := e.NumberAttr("temperature_rating")
	return ContainerAttrs{
		Name:              e.StringAttr("name"),
		Material:          e.StringAttr("material"),
		Location:          e.StringAttr("location"),
		CapacityLitres:    capacity,
		TemperatureRating: rating,
		Extra:             extraAttrs(e.Attributes, known),
	}
}

// TestAttrs is the typed view of a safety test entity.
type TestAttrs struct {
	Name   string
	Method string
	Result string
	Extra  map[string]any
}

// Test decodes the entity's attributes as a safety test.
func (e Entity) Test() TestAttrs {
	known := map[string]bool{"name": true, "method": true, "result": true}
	return TestAttrs{
		Name:   e.StringAttr("name"),
		Method: e.StringAttr("method"),
		Result: e.StringAttr("result"),
		Extra:  extraAttrs(e.Attributes, known),
	}
}

// AssessmentAttrs is the typed view of a risk assessment entity.
type AssessmentAttrs struct {
	Title     string
	RiskLevel string
	Assessor  string
	Extra     map[string]any
}

// Assessment decodes the entity's attributes as a risk assessment.
func (e Entity) Assessment() AssessmentAttrs {
	known := map[string]bool{"title": true, "risk_level": true, "assessor": true}
	return AssessmentAttrs{
		Title:     e.StringAttr("title"),
		RiskLevel: e.StringAttr("risk_level"),
		Assessor:  e.StringAttr("assessor"),
		Extra:     extraAttrs(e.Attributes, known),
	}
}

func extraAttrs(attrs map[string]any, known map[string]bool) map[string]any {
	var extra map[string]any
	for k, v := range attrs {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra
}
