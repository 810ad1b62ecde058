package tools

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/modern-go/reflect2"
)

type TagFunc func(reflect.StructField, reflect.Value) error

var durationType = reflect.TypeOf(time.Duration(0))

// DoTagFunc 对结构体的每个字段依次执行fn，v必须是结构体指针
func DoTagFunc(v interface{}, fn []TagFunc) error {
	if reflect2.IsNil(v) {
		return nil
	}

	vType1 := reflect2.TypeOf(v).Type1()
	if vType1.Kind() != reflect.Ptr || vType1.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("DoTagFunc need a pointer to struct, but got %s", vType1)
	}

	indirect := reflect.Indirect(reflect.ValueOf(v))
	for i := 0; i < indirect.NumField(); i++ {
		field := indirect.Field(i)
		fieldStruct := vType1.Elem().Field(i)
		for _, f := range fn {
			if err := f(fieldStruct, field); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetDefaultValueIfNil 字段为零值时使用default标签赋值，嵌套结构体递归处理
func SetDefaultValueIfNil(structField reflect.StructField, vValue reflect.Value) error {
	if !vValue.CanSet() {
		return nil
	}
	tag, hasTag := structField.Tag.Lookup("default")

	switch vValue.Kind() {
	case reflect.Struct:
		return setStructDefault(vValue)
	case reflect.Ptr:
		elemType := structField.Type.Elem()
		if elemType.Kind() == reflect.Struct {
			if vValue.IsNil() {
				vValue.Set(reflect.New(elemType))
			}
			return setStructDefault(vValue.Elem())
		}
		if hasTag && vValue.IsNil() {
			elem := reflect.New(elemType)
			if err := setValue(elem.Elem(), tag); err != nil {
				return fmt.Errorf("field %s: %w", structField.Name, err)
			}
			vValue.Set(elem)
		}
	case reflect.Bool:
		// false与未设置无法区分，bool请使用指针
	case reflect.Slice:
		if hasTag && vValue.Len() == 0 && tag != "" {
			parts := strings.Split(tag, ",")
			slice := reflect.MakeSlice(vValue.Type(), len(parts), len(parts))
			for i, part := range parts {
				if err := setValue(slice.Index(i), strings.TrimSpace(part)); err != nil {
					return fmt.Errorf("field %s: %w", structField.Name, err)
				}
			}
			vValue.Set(slice)
		}
	default:
		if hasTag && vValue.IsZero() {
			if err := setValue(vValue, tag); err != nil {
				return fmt.Errorf("field %s: %w", structField.Name, err)
			}
		}
	}
	return nil
}

func setStructDefault(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if err := SetDefaultValueIfNil(t.Field(i), v.Field(i)); err != nil {
			return err
		}
	}
	return nil
}

func setValue(v reflect.Value, s string) error {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.Type() == durationType {
			d, err := time.ParseDuration(s)
			if err != nil {
				return err
			}
			v.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	default:
		return fmt.Errorf("unsupported default kind %s", v.Kind())
	}
	return nil
}
