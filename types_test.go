package breeze

import (
	"encoding/json"
	"testing"
)

func TestParseEntityState(t *testing.T) {
	for _, raw := range []string{"Added", "Modified", "Deleted"} {
		state, err := ParseEntityState(raw)
		if err != nil {
			t.Fatalf("ParseEntityState(%q) failed: %v", raw, err)
		}
		if string(state) != raw {
			t.Errorf("Expected %s, got %s", raw, state)
		}
	}
	for _, raw := range []string{"Unchanged", "Detached", "added", ""} {
		if _, err := ParseEntityState(raw); err == nil {
			t.Errorf("Expected ParseEntityState(%q) to fail", raw)
		}
	}
}

func TestEntity_Aspect(t *testing.T) {
	var entity Entity
	payload := `{
		"id": -1,
		"name": "Ada",
		"entityAspect": {
			"entityTypeName": "Customer:#Sales",
			"entityState": "Modified",
			"originalValuesMap": {"name": "Ad"},
			"forceUpdate": true,
			"autoGeneratedKey": {"propertyName": "id", "autoGeneratedKeyType": "Identity"}
		}
	}`
	if err := json.Unmarshal([]byte(payload), &entity); err != nil {
		t.Fatalf("Failed to unmarshal entity: %v", err)
	}

	aspect, err := entity.Aspect()
	if err != nil {
		t.Fatalf("Aspect failed: %v", err)
	}
	if aspect.EntityTypeName != "Customer:#Sales" {
		t.Errorf("Expected entity type Customer:#Sales, got %s", aspect.EntityTypeName)
	}
	if aspect.EntityState != "Modified" {
		t.Errorf("Expected state Modified, got %s", aspect.EntityState)
	}
	if aspect.OriginalValuesMap["name"] != "Ad" {
		t.Errorf("Expected original name Ad, got %v", aspect.OriginalValuesMap["name"])
	}
	if !aspect.ForceUpdate {
		t.Error("Expected forceUpdate to be set")
	}
	if aspect.AutoGeneratedKey == nil || aspect.AutoGeneratedKey.AutoGeneratedKeyType != AutoGeneratedKeyIdentity {
		t.Errorf("Expected Identity auto generated key, got %+v", aspect.AutoGeneratedKey)
	}

	typed := Entity{EntityAspectField: &EntityAspect{EntityTypeName: "Order", EntityState: "Added"}}
	if aspect, err := typed.Aspect(); err != nil || aspect.EntityTypeName != "Order" {
		t.Errorf("Expected typed aspect to be returned as is, got %+v, %v", aspect, err)
	}

	if _, err := (Entity{"id": 1}).Aspect(); err == nil {
		t.Error("Expected an error for an entity without entityAspect")
	}
	if _, err := (Entity{EntityAspectField: "Added"}).Aspect(); err == nil {
		t.Error("Expected an error for a malformed entityAspect")
	}
}

func TestEntityInfo_KeyValues(t *testing.T) {
	et := &EntityType{
		Name: "OrderLine",
		DataProperties: []*DataProperty{
			{Name: "orderId", IsPartOfKey: true},
			{Name: "qty"},
			{Name: "lineNo", IsPartOfKey: true},
		},
	}
	info := &EntityInfo{EntityType: et, Entity: Entity{"orderId": 7, "lineNo": 2, "qty": 5}}
	keys := info.KeyValues()
	if len(keys) != 2 || keys[0] != 7 || keys[1] != 2 {
		t.Errorf("Expected key values [7 2], got %v", keys)
	}

	var nilInfo *EntityInfo
	if nilInfo.KeyValues() != nil {
		t.Error("Expected nil key values for a nil info")
	}
}

func TestSaveResult_Failed(t *testing.T) {
	var nilResult *SaveResult
	if nilResult.Failed() {
		t.Error("Expected nil result not to be failed")
	}
	if (&SaveResult{Entities: []SavedEntity{{EntityTypeName: "Order"}}}).Failed() {
		t.Error("Expected a result with entities not to be failed")
	}
	if !(&SaveResult{Message: "rejected"}).Failed() {
		t.Error("Expected a result with a message to be failed")
	}
	if !(&SaveResult{Errors: []EntityError{{ErrorName: ErrCodeValidationError}}}).Failed() {
		t.Error("Expected a result with entity errors to be failed")
	}
}
