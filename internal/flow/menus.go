// Package flow implements IngeniaBot's conversation logic: message
// classification and routing, the booking dialogue, and the AI fallback.
package flow

import "fmt"

// MainMenu is returned for exact menu-trigger phrases.
const MainMenu = `*🤖 IngeniaBot - Universidad 2025*

¡Hola! Soy tu asistente virtual. ¿Cómo puedo ayudarte?

📚 *1* - Mis cursos
💳 *2* - Mis pagos
📅 *3* - Mi agenda
🏥 *4* - Bienestar estudiantil
🔧 *5* - Soporte técnico
🎓 *6* - Admisión 2025

💬 *También puedes hacer preguntas libres*
Escribe tu duda y te responderé con IA

_Escribe el número o tu pregunta_ 👇`

// Welcome greets a phone number on first contact, before any routing.
const Welcome = `👋 ¡Bienvenido a IngeniaBot!

Soy tu asistente virtual 24/7 para ayudarte con todo lo que necesites sobre la universidad.

Escribe *"menú"* o *"hola"* para ver las opciones.`

// menuFooter closes most handler replies.
const menuFooter = `_Escribe "menú" para volver al inicio_`

// Fixed apology texts per failure taxonomy: transient store failures,
// completion-service failures and safety blocks each read differently.
const (
	apologyStore = `❌ Hubo un error al consultar la información.

Por favor intenta nuevamente en unos momentos.

` + menuFooter

	apologyAI = `Lo siento, tuve un problema al procesar tu pregunta. 😔

¿Podrías reformularla o escribir *"menú"* para ver las opciones disponibles?`

	apologySafety = `😔 No puedo responder esa pregunta.

Intenta reformularla de otra manera, o escribe *"menú"* para ver las opciones disponibles.`
)

// ApologyGeneric is the last-resort reply when message handling fails
// unexpectedly. Exported for the application loop's panic recovery.
const ApologyGeneric = `😔 Lo siento, ocurrió un error al procesar tu mensaje.

Por favor intenta nuevamente en unos momentos.`

// invalidOption re-lists the valid numeric options, echoing the input as
// typed. Returned for any all-digits input outside the menu range; the
// numeric branch never falls through to keyword matching.
func invalidOption(input string) string {
	return fmt.Sprintf(`❌ *Opción "%s" no válida*

Las opciones disponibles son:

📚 *1* - Mis cursos
💳 *2* - Mis pagos
📅 *3* - Mi agenda
🏥 *4* - Bienestar estudiantil
🔧 *5* - Soporte técnico
🎓 *6* - Admisión 2025

_O escribe tu pregunta y te responderé con IA_ 🤖`, input)
}

// wellnessReply is static campus-services copy.
const wellnessReply = `🏥 *Bienestar Estudiantil*

Servicios disponibles para ti:

🧠 *Atención Psicológica*
   • Consultas individuales
   • Talleres grupales
   • Horario: Lun-Vie 9am-5pm
   • 📞 Anexo: 2001

🏋️ *Gimnasio Universitario*
   • Incluido en tu matrícula
   • Horario: 6am-9pm

🍽️ *Comedor Universitario*
   • Menú del día: S/ 5.00
   • Horario: 12pm-3pm

📞 Contacto General:
   • Email: bienestar@universidad.edu.pe

` + menuFooter

// supportReply is static technical-support copy.
const supportReply = `🔧 *Soporte Técnico*

¿Problemas técnicos? ¡Te ayudamos!

💻 *Sistema Académico*
   • Problemas de acceso
   • Errores en matrícula
   • Consultas de notas

🔐 *Recuperar Contraseña*
   1. Ir a: campus.universidad.edu.pe
   2. Click en "¿Olvidaste tu contraseña?"
   3. Ingresar código de estudiante

🆘 *Contacto Soporte:*
   • 📧 soporte@universidad.edu.pe
   • 💬 Chat en vivo: 8am-10pm

` + menuFooter

// admissionReply is static admissions copy.
const admissionReply = `🎓 *Admisión 2025 - I*

¡Únete a nuestra comunidad universitaria!

📅 *CRONOGRAMA:*
• Inscripciones: Hasta 15 Dic 2024
• Examen: 20 de Enero 2025
• Resultados: 25 de Enero 2025

💰 *INVERSIÓN:*
• Derecho de examen: S/ 350
• Pensión mensual: Desde S/ 750

📄 *REQUISITOS:*
• DNI vigente
• Certificado de estudios

🌐 *MÁS INFORMACIÓN:*
• Web: admision.universidad.edu.pe
• 📧 admision@universidad.edu.pe

` + menuFooter

// systemPrompt is the fixed instruction embedded in every AI fallback call.
const systemPrompt = `Eres IngeniaBot, el asistente virtual oficial de una universidad en Perú.

Tu misión es ayudar a estudiantes con información académica, administrativa y servicios universitarios.

DIRECTRICES:
- Sé amigable, profesional y conciso
- Responde en español claro y sencillo
- Si no sabes algo, sé honesto y redirige al menú principal
- Mantén respuestas cortas (máximo 200 palabras)
- Si la pregunta no está relacionada con temas universitarios, redirige cortésmente al menú

TEMAS QUE MANEJAS:
- Información académica (cursos, horarios, profesores)
- Procedimientos administrativos (matrícula, certificados, trámites)
- Pagos y pensiones
- Admisión e inscripciones
- Bienestar estudiantil (psicología, salud)
- Soporte técnico (campus virtual, sistemas)`
