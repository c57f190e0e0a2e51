package modelreference

import (
	"fmt"
	"sort"
	"strings"

	"github.com/router-for-me/ChannelConsole/internal/models"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gorm.io/datatypes"
)

// modelExtraExcluded are model fields stored in dedicated columns.
var modelExtraExcluded = []string{"id", "name", "limit"}

// ParseModelsPayload converts the models.dev payload into model references
// keyed by provider id and model id.
func ParseModelsPayload(data []byte) ([]models.ModelReference, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("parse models payload: empty payload")
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse models payload: invalid json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("parse models payload: expected object of providers")
	}

	refs := make([]models.ModelReference, 0)
	var errParse error
	root.ForEach(func(key, provider gjson.Result) bool {
		providerID := strings.TrimSpace(key.String())
		if providerID == "" || !provider.IsObject() {
			return true
		}
		providerName := strings.TrimSpace(provider.Get("name").String())
		if providerName == "" {
			providerName = providerID
		}
		provider.Get("models").ForEach(func(modelKey, model gjson.Result) bool {
			modelID := strings.TrimSpace(modelKey.String())
			if modelID == "" || !model.IsObject() {
				return true
			}
			modelName := strings.TrimSpace(model.Get("name").String())
			if modelName == "" {
				modelName = modelID
			}
			extra, err := buildModelExtra(model.Raw)
			if err != nil {
				errParse = fmt.Errorf("parse models payload: model %s/%s: %w", providerID, modelID, err)
				return false
			}
			refs = append(refs, models.ModelReference{
				ProviderID:   providerID,
				ModelID:      modelID,
				ProviderName: providerName,
				ModelName:    modelName,
				ContextLimit: int(model.Get("limit.context").Int()),
				OutputLimit:  int(model.Get("limit.output").Int()),
				Extra:        extra,
			})
			return true
		})
		return errParse == nil
	})
	if errParse != nil {
		return nil, errParse
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ProviderID != refs[j].ProviderID {
			return refs[i].ProviderID < refs[j].ProviderID
		}
		return refs[i].ModelID < refs[j].ModelID
	})
	return refs, nil
}

func buildModelExtra(raw string) (datatypes.JSON, error) {
	out := raw
	for _, key := range modelExtraExcluded {
		next, err := sjson.Delete(out, key)
		if err != nil {
			return nil, err
		}
		out = next
	}
	compact := gjson.Get(out, "@ugly").Raw
	if compact == "" {
		compact = "{}"
	}
	return datatypes.JSON(compact), nil
}
