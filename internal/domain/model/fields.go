// fields.go — редактируемые поля записи, валидация, создание и изменение.
package model

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// fieldsValidate — экземпляр валидатора полей записи.
// Имена полей в ошибках берутся из JSON-тегов.
var fieldsValidate *validator.Validate

func init() {
	fieldsValidate = validator.New(validator.WithRequiredStructEnabled())
	fieldsValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Fields — редактируемые атрибуты записи. Все поля обязательны.
type Fields struct {
	Title            string `json:"title" validate:"required"`
	Department       string `json:"department" validate:"required"`
	RegistrationDate string `json:"registration_date" validate:"required,datetime=2006-01-02"`
	LastUpdate       string `json:"last_update" validate:"required,datetime=2006-01-02"`
	Responsible      string `json:"responsible" validate:"required"`
	Email            string `json:"email" validate:"required"`
}

// Trimmed возвращает копию полей без начальных и конечных пробелов.
func (f Fields) Trimmed() Fields {
	return Fields{
		Title:            strings.TrimSpace(f.Title),
		Department:       strings.TrimSpace(f.Department),
		RegistrationDate: strings.TrimSpace(f.RegistrationDate),
		LastUpdate:       strings.TrimSpace(f.LastUpdate),
		Responsible:      strings.TrimSpace(f.Responsible),
		Email:            strings.TrimSpace(f.Email),
	}
}

// Validate проверяет заполненность полей и формат дат.
// Возвращает *ValidationError со списком всех проблемных полей.
func (f Fields) Validate() error {
	err := fieldsValidate.Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	ve := &ValidationError{}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			ve.Missing = append(ve.Missing, fe.Field())
		} else {
			ve.Invalid = append(ve.Invalid, fe.Field())
		}
	}
	return ve
}

// FieldsOf возвращает текущие значения полей записи.
func FieldsOf(r *InstructionRecord) Fields {
	return Fields{
		Title:            r.Title,
		Department:       r.Department,
		RegistrationDate: r.RegistrationDate,
		LastUpdate:       r.LastUpdate,
		Responsible:      r.Responsible,
		Email:            r.Email,
	}
}

// NewRecord создаёт запись с новым идентификатором и записью истории «Создание».
// Файл к записи прикрепляется отдельно (FileVersionStore).
func NewRecord(fields Fields, actor string, now time.Time) (*InstructionRecord, error) {
	f := fields.Trimmed()
	if err := f.Validate(); err != nil {
		return nil, err
	}

	r := &InstructionRecord{
		ID:               uuid.New().String(),
		Title:            f.Title,
		Department:       f.Department,
		RegistrationDate: f.RegistrationDate,
		LastUpdate:       f.LastUpdate,
		Responsible:      f.Responsible,
		Email:            f.Email,
		History:          []HistoryEntry{},
		FileVersions:     []FileVersionEntry{},
	}
	r.AppendHistory(ChangeCreate, `Создана новая инструкция "`+f.Title+`"`, actor, now)

	return r, nil
}

// ApplyEdit применяет новые значения полей.
// Все изменения одной операции описываются одной записью «Редактирование»;
// если ни одно поле не изменилось, история не дополняется и возвращается false.
func (r *InstructionRecord) ApplyEdit(fields Fields, actor string, now time.Time) (bool, error) {
	f := fields.Trimmed()
	if err := f.Validate(); err != nil {
		return false, err
	}

	changes := diffFields(FieldsOf(r), f)

	r.Title = f.Title
	r.Department = f.Department
	r.RegistrationDate = f.RegistrationDate
	r.LastUpdate = f.LastUpdate
	r.Responsible = f.Responsible
	r.Email = f.Email

	if len(changes) == 0 {
		return false, nil
	}

	r.AppendHistory(ChangeEdit, strings.Join(changes, "; "), actor, now)
	return true, nil
}

// diffFields описывает отличия: для текстовых полей «старое → новое»,
// для дат и e-mail — только факт изменения.
func diffFields(old, updated Fields) []string {
	var changes []string
	if old.Title != updated.Title {
		changes = append(changes, "Название: '"+old.Title+"' → '"+updated.Title+"'")
	}
	if old.Department != updated.Department {
		changes = append(changes, "Подразделение: '"+old.Department+"' → '"+updated.Department+"'")
	}
	if old.RegistrationDate != updated.RegistrationDate {
		changes = append(changes, "Дата регистрации изменена")
	}
	if old.LastUpdate != updated.LastUpdate {
		changes = append(changes, "Дата актуализации обновлена")
	}
	if old.Responsible != updated.Responsible {
		changes = append(changes, "Ответственный: '"+old.Responsible+"' → '"+updated.Responsible+"'")
	}
	if old.Email != updated.Email {
		changes = append(changes, "Email изменен")
	}
	return changes
}
