package entity

import (
	"encoding/json"
	"time"
)

// LogKind identifies the action recorded by a LogEntry
type LogKind string

const (
	LogCreatePackage      LogKind = "crear_paquete"
	LogDeletePackage      LogKind = "eliminar_paquete"
	LogAddLine            LogKind = "añadir_linea"
	LogRemoveLine         LogKind = "eliminar_linea"
	LogEditData           LogKind = "editar_datos"
	LogChangePrice        LogKind = "cambiar_precio"
	LogChangeClose        LogKind = "cambiar_cierre"
	LogAttachInvoice      LogKind = "subir_factura"
	LogRemoveInvoice      LogKind = "eliminar_factura"
	LogStoreVerification  LogKind = "verificacion_ia"
	LogClearVerification  LogKind = "eliminar_verificacion"
	LogValidate           LogKind = "validar_verificacion"
	LogChangeStatus       LogKind = "cambiar_estado"
	LogChangePayment      LogKind = "cambiar_pago"
	LogAddComment         LogKind = "añadir_comentario"
	LogRemoveComment      LogKind = "eliminar_comentario"
	LogSystemRecalculated LogKind = "recalculo_sistema"
)

// SystemActor is the actor recorded on automatic recalculation entries
const SystemActor = "sistema"

// LogEntry is an immutable audit record of one package mutation
type LogEntry struct {
	ID           string          `json:"id"`
	PackageID    string          `json:"package_id"`
	ExpeditionID string          `json:"expedition_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Actor        string          `json:"actor"`
	Kind         LogKind         `json:"kind"`
	Details      json.RawMessage `json:"details"`
}
