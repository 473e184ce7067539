/*
Package iso7816 implements the APDU layer used to talk to an ICAO 9303
contactless chip: command/response encoding per ISO/IEC 7816-3 and 7816-4,
typed Class/Instruction/StatusWord wrappers, and a Client that hides the
transport-level quirks of the protocol.

# Fundamentals

Communication with the chip is strictly synchronous:
 1. The terminal sends a Command APDU (4-byte header + optional body).
 2. The chip answers with a Response APDU (optional body + SW1/SW2 trailer).

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success.
  - 0x61XX: Success, XX more bytes available via GET RESPONSE.
  - 0x6CXX: Wrong Le, XX is the correct length.
  - 0x6982: Security status not satisfied (secure messaging required).
  - Other:  Various error conditions.

The Client resolves 61XX and 6CXX automatically; callers observe only the
final logical outcome, with the full conversation preserved in a Trace.

# eMRTD usage

The command builders in this package cover the subset of ISO 7816-4 an
eMRTD reader needs: SELECT (application by AID, elementary file by file
identifier), READ BINARY, GET CHALLENGE and EXTERNAL AUTHENTICATE. Once a
Basic Access Control session is established, commands are wrapped by the
secure-messaging layer before reaching the Client.
*/
package iso7816
