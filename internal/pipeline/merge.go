package pipeline

import (
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/ultralytics/stars/pkg/utils"
)

// SafeMerge reconciles a freshly fetched record with its previously persisted
// copy: for each named counter (by JSON tag) that came back zero while the
// prior value is non-zero, the prior value is kept. A flaky upstream must not
// overwrite good data with zeroes. Returns the restored field names.
func SafeMerge[T any](log *zap.Logger, label string, fresh, prior *T, fields ...string) []string {
	if fresh == nil || prior == nil {
		return nil
	}
	fv := reflect.ValueOf(fresh).Elem()
	pv := reflect.ValueOf(prior).Elem()
	if fv.Kind() != reflect.Struct {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	var restored []string
	for _, name := range fields {
		idx, ok := fieldByJSONName(fv.Type(), name)
		if !ok {
			log.Debug("merge field not found", zap.String("label", label), zap.String("field", name))
			continue
		}
		nf := fv.Field(idx)
		of := pv.Field(idx)
		if !isNumericKind(nf.Kind()) || !nf.CanSet() {
			continue
		}
		if !nf.IsZero() || of.IsZero() {
			continue
		}
		log.Warn("upstream returned 0, keeping previous value",
			zap.String("label", label),
			zap.String("field", name),
			zap.Float64("previous", utils.Numeric(of.Interface())))
		nf.Set(of)
		restored = append(restored, name)
	}
	return restored
}

// fieldByJSONName finds the struct field whose json tag name matches name
func fieldByJSONName(t reflect.Type, name string) (int, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		tagName, _, _ := strings.Cut(tag, ",")
		if tagName == "" {
			tagName = f.Name
		}
		if tagName == name {
			return i, true
		}
	}
	return 0, false
}

func isNumericKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}
